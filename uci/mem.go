package uci

import (
	"strconv"
	"sync"
)

// Mem is an in-memory Store. It backs tests and embedders that have no
// uci binary; Save is immediate since there is nothing to flush to.
// Exported for use in tests.
type Mem struct {
	mu       sync.Mutex
	order    []string
	types    map[string]string
	sections map[string]map[string][]string
	saves    int
}

// NewMem creates an empty in-memory store.
func NewMem() *Mem {
	return &Mem{
		types:    map[string]string{},
		sections: map[string]map[string][]string{},
	}
}

func (m *Mem) section(name string) map[string][]string {
	s, ok := m.sections[name]
	if !ok {
		s = map[string][]string{}
		m.sections[name] = s
		m.order = append(m.order, name)
	}
	return s
}

func (m *Mem) Get(section, option string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals := m.sections[section][option]
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

func (m *Mem) GetInt(section, option string, def int) int {
	s, ok := m.Get(section, option)
	if !ok {
		return def
	}
	return atoi(s, def)
}

func (m *Mem) GetList(section, option string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals := m.sections[section][option]
	out := make([]string, len(vals))
	copy(out, vals)
	return out
}

func (m *Mem) Sections(sectionType string) []map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []map[string]string
	for _, name := range m.order {
		if m.types[name] != sectionType {
			continue
		}
		s := map[string]string{}
		for opt, vals := range m.sections[name] {
			if len(vals) > 0 {
				s[opt] = vals[0]
			}
		}
		out = append(out, s)
	}
	return out
}

func (m *Mem) AddSection(section, sectionType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.section(section)
	m.types[section] = sectionType
}

func (m *Mem) Set(section, option, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.section(section)[option] = []string{value}
}

func (m *Mem) SetInt(section, option string, value int) {
	m.Set(section, option, strconv.Itoa(value))
}

func (m *Mem) Append(section, option, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.section(section)
	s[option] = append(s[option], value)
}

func (m *Mem) Revert(section, option string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sections[section], option)
}

func (m *Mem) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	return nil
}

// Saves returns how often Save has been called.
func (m *Mem) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
