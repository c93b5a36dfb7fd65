package consistency

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

var errSaveFailed = errors.New("保存に失敗しました")

// failingStore は fail が立っている間だけ保存に失敗する Store なのだ。
type failingStore struct {
	Store
	fail atomic.Bool
}

func (s *failingStore) SaveCharacter(ctx context.Context, ref *domain.CharacterReference) error {
	if s.fail.Load() {
		return errSaveFailed
	}
	return s.Store.SaveCharacter(ctx, ref)
}

func (s *failingStore) SaveScene(ctx context.Context, ref *domain.SceneReference) error {
	if s.fail.Load() {
		return errSaveFailed
	}
	return s.Store.SaveScene(ctx, ref)
}
