package consistency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// DefaultBestSeedCount は BestSeeds 系で count を省略したときの件数なのだ。
const DefaultBestSeedCount = 3

// ReferenceNotFoundError は未登録のキャラクターやシーンへの記録を表すのだ。
type ReferenceNotFoundError struct {
	Kind string // "character" または "scene"
	ID   string
}

func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("%s の参照が見つかりません: %s", e.Kind, e.ID)
}

// Statistics は追跡中の参照の集計です。
type Statistics struct {
	TotalCharacters          int `json:"total_characters"`
	TotalScenes              int `json:"total_scenes"`
	CharactersWithReferences int `json:"characters_with_references"`
	ScenesWithReferences     int `json:"scenes_with_references"`
	TotalGenerations         int `json:"total_generations"`
}

// Option は Tracker の設定を差し替える関数オプションなのだ。
type Option func(*Tracker)

// WithClock は履歴のタイムスタンプに使う時計を差し替えるのだ。
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger はロガーを設定するのだ。
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// Tracker は登場人物と場面の一貫性参照を保持し、変更のたびに永続化するのだ。
// 返す参照は全て複製なので、呼び出し側が書き換えても内部状態は変わらないのだよ。
type Tracker struct {
	mu         sync.RWMutex
	store      Store
	characters map[string]*domain.CharacterReference
	scenes     map[string]*domain.SceneReference

	now    func() time.Time
	logger *slog.Logger
}

// NewTracker は Tracker を初期化するのだ。
func NewTracker(store Store, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("store は必須です")
	}
	t := &Tracker{
		store:      store,
		characters: make(map[string]*domain.CharacterReference),
		scenes:     make(map[string]*domain.SceneReference),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Initialize は永続化済みの参照を読み込むのだ。
func (t *Tracker) Initialize(ctx context.Context) error {
	chars, scenes, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("参照の読み込みに失敗しました: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range chars {
		t.characters[r.CharacterID] = r
	}
	for _, r := range scenes {
		t.scenes[r.SceneID] = r
	}
	t.logger.Info("一貫性参照を読み込んだのだ", "characters", len(chars), "scenes", len(scenes))
	return nil
}

// InitializeCharacters はまだ参照の無いキャラクターだけ参照を作るのだ。既存の参照は上書きしないのだよ。
func (t *Tracker) InitializeCharacters(ctx context.Context, chars []domain.Character) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range chars {
		if _, ok := t.characters[c.ID]; ok {
			continue
		}
		ref := newCharacterReference(c)
		if err := t.store.SaveCharacter(ctx, ref); err != nil {
			return fmt.Errorf("キャラクター %s の参照の保存に失敗しました: %w", c.ID, err)
		}
		t.characters[c.ID] = ref
	}
	return nil
}

// InitializeScenes はまだ参照の無いシーンだけ参照を作るのだ。
func (t *Tracker) InitializeScenes(ctx context.Context, scenes []domain.Scene) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range scenes {
		if _, ok := t.scenes[s.ID]; ok {
			continue
		}
		ref := newSceneReference(s)
		if err := t.store.SaveScene(ctx, ref); err != nil {
			return fmt.Errorf("シーン %s の参照の保存に失敗しました: %w", s.ID, err)
		}
		t.scenes[s.ID] = ref
	}
	return nil
}

// CharacterReference は参照の複製を返すのだ。
func (t *Tracker) CharacterReference(id string) (*domain.CharacterReference, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ref, ok := t.characters[id]
	return ref.Clone(), ok
}

// SceneReference は参照の複製を返すのだ。
func (t *Tracker) SceneReference(id string) (*domain.SceneReference, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ref, ok := t.scenes[id]
	return ref.Clone(), ok
}

// RecordCharacterGeneration は生成結果を履歴に追加し、高評価ならシードと参照画像に昇格させるのだ。
// 保存に失敗したときはメモリ上の参照も変えないのだよ。
func (t *Tracker) RecordCharacterGeneration(ctx context.Context, id string, img domain.GeneratedImage, score float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.characters[id]
	if !ok {
		return &ReferenceNotFoundError{Kind: "character", ID: id}
	}
	ref := cur.Clone()
	ref.GenerationHistory = appendHistory(ref.GenerationHistory, t.entry(img, score))
	if score >= domain.HighQualityThreshold {
		ref.SuccessfulSeeds, ref.ReferenceImages = promote(ref.SuccessfulSeeds, ref.ReferenceImages, img)
	}
	if err := t.store.SaveCharacter(ctx, ref); err != nil {
		return err
	}
	t.characters[id] = ref
	return nil
}

// RecordSceneGeneration はシーン版の RecordCharacterGeneration なのだ。
func (t *Tracker) RecordSceneGeneration(ctx context.Context, id string, img domain.GeneratedImage, score float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.scenes[id]
	if !ok {
		return &ReferenceNotFoundError{Kind: "scene", ID: id}
	}
	ref := cur.Clone()
	ref.GenerationHistory = appendHistory(ref.GenerationHistory, t.entry(img, score))
	if score >= domain.HighQualityThreshold {
		ref.SuccessfulSeeds, ref.ReferenceImages = promote(ref.SuccessfulSeeds, ref.ReferenceImages, img)
	}
	if err := t.store.SaveScene(ctx, ref); err != nil {
		return err
	}
	t.scenes[id] = ref
	return nil
}

func (t *Tracker) entry(img domain.GeneratedImage, score float64) domain.HistoryEntry {
	return domain.HistoryEntry{
		Prompt:       img.Prompt,
		Seed:         img.Seed,
		ImageURL:     img.URL,
		QualityScore: score,
		Timestamp:    t.now(),
	}
}

// appendHistory は上限を超えた古い履歴から捨てるのだ。
func appendHistory(h []domain.HistoryEntry, e domain.HistoryEntry) []domain.HistoryEntry {
	h = append(h, e)
	if over := len(h) - domain.MaxGenerationHistory; over > 0 {
		h = slices.Clone(h[over:])
	}
	return h
}

// promote は 0 でないシードとローカルパスを重複なしで追加するのだ。
func promote(seeds []int64, images []string, img domain.GeneratedImage) ([]int64, []string) {
	if img.Seed != 0 && !slices.Contains(seeds, img.Seed) {
		seeds = append(seeds, img.Seed)
	}
	if img.LocalPath != "" && !slices.Contains(images, img.LocalPath) {
		images = append(images, img.LocalPath)
	}
	return seeds, images
}

// BestSeedsForCharacter は履歴をスコアの高い順に並べ、重複しないシードを最大 count 個返すのだ。
// 同点は記録順、シード 0 は飛ばすのだよ。
func (t *Tracker) BestSeedsForCharacter(id string, count int) []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ref, ok := t.characters[id]
	if !ok {
		return nil
	}
	return bestSeeds(ref.GenerationHistory, count)
}

// BestSeedsForScene はシーン版の BestSeedsForCharacter なのだ。
func (t *Tracker) BestSeedsForScene(id string, count int) []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ref, ok := t.scenes[id]
	if !ok {
		return nil
	}
	return bestSeeds(ref.GenerationHistory, count)
}

func bestSeeds(history []domain.HistoryEntry, count int) []int64 {
	if count <= 0 {
		count = DefaultBestSeedCount
	}
	sorted := slices.Clone(history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].QualityScore > sorted[j].QualityScore
	})

	var seeds []int64
	for _, e := range sorted {
		if len(seeds) >= count {
			break
		}
		if e.Seed == 0 || slices.Contains(seeds, e.Seed) {
			continue
		}
		seeds = append(seeds, e.Seed)
	}
	return seeds
}

// Statistics は追跡中の参照を集計するのだ。
func (t *Tracker) Statistics() Statistics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st := Statistics{TotalCharacters: len(t.characters), TotalScenes: len(t.scenes)}
	for _, r := range t.characters {
		if len(r.ReferenceImages) > 0 {
			st.CharactersWithReferences++
		}
		st.TotalGenerations += len(r.GenerationHistory)
	}
	for _, r := range t.scenes {
		if len(r.ReferenceImages) > 0 {
			st.ScenesWithReferences++
		}
		st.TotalGenerations += len(r.GenerationHistory)
	}
	return st
}
