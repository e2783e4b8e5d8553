package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/tidwall/gjson"

	"github.com/celerix-dev/celerix-attendance/pkg/schema"
)

// Document names inside the data directory.
const (
	SessionsFile = "attendance_data.json"
	NamesFile    = "users.json"
)

// Persistence handles the disk I/O for the MemStore and the FileDirectory.
// Each document is always rewritten whole.
type Persistence struct {
	DataDir string
	mu      sync.Mutex // Protects concurrent writes to the filesystem
}

// NewPersistence initializes a persistence handler.
func NewPersistence(dir string) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Persistence{DataDir: dir}, nil
}

func (p *Persistence) path(name string) string {
	return filepath.Join(p.DataDir, name)
}

// SaveSessions writes the sessions document with users in the given order.
// The file is replaced atomically: readers see the old or the new document,
// never a partial one.
func (p *Persistence) SaveSessions(order []string, data map[string][]schema.Session) error {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, userID := range order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(userID)
		if err != nil {
			return err
		}
		sessions := data[userID]
		if sessions == nil {
			sessions = []schema.Session{}
		}
		val, err := json.Marshal(sessions)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	return p.write(SessionsFile, &out)
}

// LoadSessions reads the sessions document. A missing document is an empty
// store; anything unreadable is reported as ErrCorruptState.
func (p *Persistence) LoadSessions() ([]string, map[string][]schema.Session, error) {
	data, err := p.read(SessionsFile)
	if err != nil {
		return nil, nil, err
	}
	order := []string{}
	sessions := make(map[string][]schema.Session)
	if data == nil {
		return order, sessions, nil
	}

	root, err := parseObject(SessionsFile, data)
	if err != nil {
		return nil, nil, err
	}
	root.ForEach(func(key, value gjson.Result) bool {
		userID := key.String()
		var list []schema.Session
		if err = json.Unmarshal([]byte(value.Raw), &list); err != nil {
			err = fmt.Errorf("%w: %s: user %s: %v", ErrCorruptState, SessionsFile, userID, err)
			return false
		}
		if err = CheckSessions(list); err != nil {
			err = fmt.Errorf("%w: %s: user %s: %v", ErrCorruptState, SessionsFile, userID, err)
			return false
		}
		if _, seen := sessions[userID]; !seen {
			order = append(order, userID)
		}
		sessions[userID] = list
		return true
	})
	if err != nil {
		return nil, nil, err
	}
	return order, sessions, nil
}

// SaveNames writes the user directory document.
func (p *Persistence) SaveNames(names map[string]string) error {
	if names == nil {
		names = map[string]string{}
	}
	b, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return p.write(NamesFile, bytes.NewReader(b))
}

// LoadNames reads the user directory document.
func (p *Persistence) LoadNames() (map[string]string, error) {
	data, err := p.read(NamesFile)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string)
	if data == nil {
		return names, nil
	}
	if _, err := parseObject(NamesFile, data); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, NamesFile, err)
	}
	return names, nil
}

// Quarantine moves a document out of the way so the next save starts fresh.
// It returns the new path.
func (p *Persistence) Quarantine(name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	src := p.path(name)
	dst := fmt.Sprintf("%s.corrupt-%d", src, time.Now().Unix())
	if err := os.Rename(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (p *Persistence) write(name string, r io.Reader) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return atomic.WriteFile(p.path(name), r)
}

// read returns nil data when the document does not exist yet.
func (p *Persistence) read(name string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func parseObject(name string, data []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%w: %s is not valid JSON", ErrCorruptState, name)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: %s is not a JSON object", ErrCorruptState, name)
	}
	return root, nil
}
