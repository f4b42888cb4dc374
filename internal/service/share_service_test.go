package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"shutter/internal/events"
	"shutter/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShareService_ConcurrentSharesAllCount(t *testing.T) {
	var count atomic.Int64
	repo := &postRepoStub{incrementShareCountFn: func(context.Context, uint) error {
		count.Add(1)
		return nil
	}}
	pub := &recordingPublisher{}
	svc := NewShareService(repo, pub)

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Share(context.Background(), 4))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), count.Load())
	assert.Equal(t, []string{events.TypePostShared, events.TypePostShared, events.TypePostShared}, pub.awaitTypes(t, 3))
}

func TestShareService_Errors(t *testing.T) {
	tests := []struct {
		name      string
		postID    uint
		repoErr   error
		wantCode  string
		wantStage string
	}{
		{name: "zero id", postID: 0, wantCode: models.CodeValidation},
		{name: "missing post", postID: 8, repoErr: models.NewNotFoundError("Post", 8), wantCode: models.CodeNotFound},
		{name: "database down", postID: 8, repoErr: errors.New("conn reset"), wantCode: models.CodeService, wantStage: models.StageDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			svc := NewShareService(&postRepoStub{incrementShareCountFn: func(context.Context, uint) error {
				return tt.repoErr
			}}, pub)

			appErr := assertAppError(t, svc.Share(context.Background(), tt.postID), tt.wantCode)
			assert.Equal(t, tt.wantStage, appErr.Stage)
			assert.Empty(t, pub.types())
		})
	}
}

func TestShareService_RepeatedSharesKeepIncrementing(t *testing.T) {
	calls := 0
	svc := NewShareService(&postRepoStub{incrementShareCountFn: func(context.Context, uint) error {
		calls++
		return nil
	}}, nil)

	for range 5 {
		require.NoError(t, svc.Share(context.Background(), 1))
	}
	assert.Equal(t, 5, calls)
}
