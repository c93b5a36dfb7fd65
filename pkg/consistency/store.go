package consistency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// Store は参照の永続化先なのだ。
type Store interface {
	Load(ctx context.Context) ([]*domain.CharacterReference, []*domain.SceneReference, error)
	SaveCharacter(ctx context.Context, ref *domain.CharacterReference) error
	SaveScene(ctx context.Context, ref *domain.SceneReference) error
}

const (
	referencesDir = ".storyboard/references"
	charactersDir = "characters"
	scenesDir     = "scenes"
)

// FileStore はエンティティごとに1つの JSON ファイルへ保存するのだ。
// 書き込みは一時ファイルからのリネームで行うので、途中で落ちても壊れたファイルは残らないのだよ。
type FileStore struct {
	root string
}

// NewFileStore はプロジェクトディレクトリ配下の参照ディレクトリを使う FileStore を返すのだ。
func NewFileStore(projectDir string) *FileStore {
	return &FileStore{root: filepath.Join(projectDir, filepath.FromSlash(referencesDir))}
}

// Root は参照ディレクトリのパスです。
func (s *FileStore) Root() string { return s.root }

// Load はディレクトリを用意して既存の参照を全て読み込むのだ。
func (s *FileStore) Load(ctx context.Context) ([]*domain.CharacterReference, []*domain.SceneReference, error) {
	for _, dir := range []string{charactersDir, scenesDir} {
		if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
			return nil, nil, fmt.Errorf("参照ディレクトリの作成に失敗しました: %w", err)
		}
	}

	chars, err := loadAll[domain.CharacterReference](ctx, filepath.Join(s.root, charactersDir))
	if err != nil {
		return nil, nil, err
	}
	scenes, err := loadAll[domain.SceneReference](ctx, filepath.Join(s.root, scenesDir))
	if err != nil {
		return nil, nil, err
	}
	return chars, scenes, nil
}

func loadAll[T any](ctx context.Context, dir string) ([]*T, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("参照ディレクトリの読み込みに失敗しました: %w", err)
	}

	var out []*T
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("参照ファイル %s の読み込みに失敗しました: %w", path, err)
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("参照ファイル %s のパースに失敗しました: %w", path, err)
		}
		out = append(out, &v)
	}
	return out, nil
}

func (s *FileStore) SaveCharacter(ctx context.Context, ref *domain.CharacterReference) error {
	return s.save(ctx, charactersDir, ref.CharacterID, ref)
}

func (s *FileStore) SaveScene(ctx context.Context, ref *domain.SceneReference) error {
	return s.save(ctx, scenesDir, ref.SceneID, ref)
}

func (s *FileStore) save(ctx context.Context, kind, id string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := domain.ValidateReferenceID(id); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("参照のエンコードに失敗しました: %w", err)
	}

	dir := filepath.Join(s.root, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("参照ディレクトリの作成に失敗しました: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, id+".json"), data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("一時ファイルへの書き込みに失敗しました: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("参照ファイルの置き換えに失敗しました: %w", err)
	}
	return nil
}
