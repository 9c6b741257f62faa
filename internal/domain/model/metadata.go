// metadata.go — структура метаданных документа.
//
// Три известных пространства имён (basic, exif, xmp) и произвольные
// неизвестные пространства, которые сохраняются без изменений.
// Значения внутри пространства — строки или последовательности строк,
// жёсткая схема не навязывается.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Имена известных пространств метаданных.
const (
	NamespaceBasic = "basic"
	NamespaceExif  = "exif"
	NamespaceXMP   = "xmp"
)

// Namespace — одно пространство метаданных: ключ → строка или список строк.
type Namespace map[string]any

// Text возвращает значение поля как строку.
// Последовательности объединяются через ", ". Пустая строка — поле отсутствует.
// Вложенные объекты и null не считаются значениями.
func (ns Namespace) Text(key string) string {
	return joinNonEmpty(ns.Values(key))
}

// Values возвращает непустые скалярные значения поля списком.
// Одиночное значение даёт список из одного элемента.
func (ns Namespace) Values(key string) []string {
	if ns == nil {
		return nil
	}
	var raw []string
	switch v := ns[key].(type) {
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := scalarText(item); ok {
				raw = append(raw, s)
			}
		}
	default:
		if s, ok := scalarText(v); ok {
			raw = []string{s}
		}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// scalarText форматирует строку, число или bool; остальное отбрасывается.
func scalarText(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	default:
		return "", false
	}
}

func joinNonEmpty(parts []string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// Metadata — метаданные документа.
type Metadata struct {
	// Basic — title, description, author, keywords
	Basic Namespace
	// Exif — унаследованное пространство, к PDF не применяется и не записывается в файл
	Exif Namespace
	// XMP — creator, rights, subject (Dublin Core)
	XMP Namespace
	// Extra — неизвестные пространства, передаются как есть
	Extra map[string]json.RawMessage
}

// NewMetadata создаёт метаданные с заполненным автором (если указан).
func NewMetadata(author string) Metadata {
	md := Metadata{Basic: Namespace{}, Exif: Namespace{}, XMP: Namespace{}}
	if author = strings.TrimSpace(author); author != "" {
		md.Basic["author"] = author
	}
	return md
}

// MarshalJSON сериализует метаданные детерминированно:
// ключи объектов сортируются (encoding/json сортирует ключи map).
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 3+len(m.Extra))
	for k, v := range m.Extra {
		out[k] = v
	}
	out[NamespaceBasic] = nonNil(m.Basic)
	out[NamespaceExif] = nonNil(m.Exif)
	out[NamespaceXMP] = nonNil(m.XMP)
	return json.Marshal(out)
}

// UnmarshalJSON разбирает метаданные. Известные пространства обязаны быть
// объектами, неизвестные сохраняются как сырой JSON.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("метаданные должны быть JSON-объектом: %w", err)
	}

	result := Metadata{Basic: Namespace{}, Exif: Namespace{}, XMP: Namespace{}}
	for key, value := range raw {
		var target *Namespace
		switch key {
		case NamespaceBasic:
			target = &result.Basic
		case NamespaceExif:
			target = &result.Exif
		case NamespaceXMP:
			target = &result.XMP
		default:
			if result.Extra == nil {
				result.Extra = make(map[string]json.RawMessage)
			}
			result.Extra[key] = append(json.RawMessage(nil), value...)
			continue
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			continue
		}
		ns := Namespace{}
		if err := json.Unmarshal(value, &ns); err != nil {
			return fmt.Errorf("пространство %q должно быть объектом: %w", key, err)
		}
		*target = ns
	}

	*m = result
	return nil
}

// Clone возвращает глубокую копию метаданных.
func (m Metadata) Clone() Metadata {
	c := Metadata{
		Basic: cloneNamespace(m.Basic),
		Exif:  cloneNamespace(m.Exif),
		XMP:   cloneNamespace(m.XMP),
	}
	if m.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(m.Extra))
		for k, v := range m.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

// ExtraNamespaces возвращает отсортированные имена неизвестных пространств.
func (m Metadata) ExtraNamespaces() []string {
	names := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func nonNil(ns Namespace) Namespace {
	if ns == nil {
		return Namespace{}
	}
	return ns
}

func cloneNamespace(ns Namespace) Namespace {
	if ns == nil {
		return Namespace{}
	}
	c := make(Namespace, len(ns))
	for k, v := range ns {
		c[k] = cloneValue(v)
	}
	return c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		c := make([]any, len(t))
		for i := range t {
			c[i] = cloneValue(t[i])
		}
		return c
	case []string:
		return append([]string(nil), t...)
	case map[string]any:
		c := make(map[string]any, len(t))
		for k, val := range t {
			c[k] = cloneValue(val)
		}
		return c
	default:
		return v
	}
}
