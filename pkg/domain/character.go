package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
)

// Appearance はキャラクターの外見情報なのだ。
type Appearance struct {
	Height              string   `json:"height,omitempty"`
	Hair                []string `json:"hair,omitempty"`
	Clothing            []string `json:"clothing,omitempty"`
	DistinctiveFeatures []string `json:"distinctive_features,omitempty"`
}

// Character は台本に登場するキャラクターの定義を保持します。
type Character struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Age           int         `json:"age,omitempty"`
	Role          string      `json:"role"`
	Appearance    *Appearance `json:"appearance,omitempty"`
	Personality   string      `json:"personality,omitempty"`
	DrawingPrompt string      `json:"drawing_prompt,omitempty"`
}

// Scene は場所・時間・雰囲気のまとまりなのだ。
type Scene struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Location      string   `json:"location"`
	Time          string   `json:"time"`
	Weather       string   `json:"weather,omitempty"`
	Atmosphere    string   `json:"atmosphere,omitempty"`
	ColorScheme   []string `json:"color_scheme,omitempty"`
	DrawingPrompt string   `json:"drawing_prompt,omitempty"`
}

// Roster は台本インポートが提供するキャラクターとシーンの一覧なのだ。
type Roster struct {
	Characters []Character `json:"characters"`
	Scenes     []Scene     `json:"scenes"`
}

// LoadRoster は指定されたファイルパスからJSONを読み込み、ロスターを返すのだ。
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ロスターファイルの読み込みに失敗したのだ: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster はJSONバイト列からロスターをパースして返します。
// この関数はステートレスであり、キャッシュを行いません。
func ParseRoster(data []byte) (*Roster, error) {
	var r Roster
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("ロスターのJSONパースに失敗しました: %w", err)
	}
	for i, c := range r.Characters {
		if c.ID == "" || c.Name == "" {
			return nil, fmt.Errorf("キャラクター[%d] に id と name が必要なのだ", i)
		}
		if err := ValidateReferenceID(c.ID); err != nil {
			return nil, fmt.Errorf("キャラクター[%d]: %w", i, err)
		}
	}
	for i, s := range r.Scenes {
		if s.ID == "" {
			return nil, fmt.Errorf("シーン[%d] に id が必要なのだ", i)
		}
		if err := ValidateReferenceID(s.ID); err != nil {
			return nil, fmt.Errorf("シーン[%d]: %w", i, err)
		}
	}
	return &r, nil
}

// String はキャラクターの情報を文字列で返すのだ。
func (c Character) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.ID)
}

// GetSeedFromName は名前から決定論的なシード値を生成します。
func GetSeedFromName(name string) int64 {
	hash := sha256.Sum256([]byte(name))
	// プロバイダは正のシードを期待するため、最上位ビットを落とすのだ
	return int64(binary.BigEndian.Uint32(hash[:4]) & 0x7FFFFFFF)
}
