package graph

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pbaille/drift/internal/domain"
	"github.com/pbaille/drift/internal/quotes"
	"gopkg.in/yaml.v3"
)

// LoadAllowList reads the primary tag allow-list. YAML files (.yaml/.yml)
// hold a list of strings; any other file has one tag per line with blank
// lines and #-comments ignored. Tags are normalized and deduplicated.
func LoadAllowList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read allow-list: %w", err)
	}

	var raw []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse allow-list: %w", err)
		}
	default:
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			line := sc.Text()
			if i := strings.IndexByte(line, '#'); i >= 0 {
				line = line[:i]
			}
			raw = append(raw, line)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("scan allow-list: %w", err)
		}
	}

	seen := make(map[string]bool, len(raw))
	var tags []string
	for _, t := range raw {
		t = domain.NormalizeTag(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags, nil
}

// LoadConnections reads a tag connection file
func LoadConnections(path string) (domain.Connections, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read connections: %w", err)
	}
	var conns domain.Connections
	if err := json.Unmarshal(data, &conns); err != nil {
		return nil, fmt.Errorf("parse connections: %w", err)
	}
	return conns, nil
}

// SaveConnections writes the connection file atomically
func SaveConnections(path string, conns domain.Connections) error {
	data, err := json.MarshalIndent(conns, "", "  ")
	if err != nil {
		return fmt.Errorf("encode connections: %w", err)
	}
	return quotes.WriteFileAtomic(path, append(data, '\n'))
}
