package domain

import "strings"

// FindCharacter は ID からキャラクターを特定するのだ。大文字小文字違いもフォールバックで探すのだよ。
func (r *Roster) FindCharacter(id string) *Character {
	if r == nil {
		return nil
	}
	for i := range r.Characters {
		if r.Characters[i].ID == id {
			res := r.Characters[i]
			return &res
		}
	}
	for i := range r.Characters {
		if strings.EqualFold(r.Characters[i].ID, id) {
			res := r.Characters[i]
			return &res
		}
	}
	return nil
}

// FindScene は ID からシーンを返すのだ。
func (r *Roster) FindScene(id string) (Scene, bool) {
	if r == nil {
		return Scene{}, false
	}
	for _, s := range r.Scenes {
		if s.ID == id {
			return s, true
		}
	}
	return Scene{}, false
}

// CharactersInShot はショットに登場するキャラクターをロスター順で返すのだ。
// 台詞の話者名と、本文中に名前がそのまま現れるキャラクターが対象なのだ。
func (r *Roster) CharactersInShot(shot Shot) []Character {
	if r == nil {
		return nil
	}

	names := make(map[string]struct{})
	for _, n := range shot.DialogueNames() {
		names[n] = struct{}{}
	}
	for _, c := range r.Characters {
		if c.Name != "" && strings.Contains(shot.Content, c.Name) {
			names[c.Name] = struct{}{}
		}
	}

	found := make([]Character, 0, len(names))
	for _, c := range r.Characters {
		if _, ok := names[c.Name]; ok {
			found = append(found, c)
		}
	}
	return found
}
