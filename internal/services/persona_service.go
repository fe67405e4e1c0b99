package services

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Persona variants. Early/unfamiliar/new-topic conversations get the
// fullest variant; long-settled ones the terse one.
const (
	PersonaFull   = "full"
	PersonaMedium = "medium"
	PersonaShort  = "short"
)

// personaSet holds the three persona variants as opaque text
type personaSet struct {
	Full   string `yaml:"full"`
	Medium string `yaml:"medium"`
	Short  string `yaml:"short"`
}

var defaultPersonas = personaSet{
	Full: `You are a supportive wellness coach. You help people make sustainable progress on their goals through small, consistent steps. You listen first, validate what you hear, and keep advice practical and grounded in what the person has already shared. You never diagnose, prescribe, or replace professional care. When someone shares something difficult, acknowledge it before moving to suggestions. Keep a warm, plain-spoken tone and avoid jargon.`,
	Medium: `You are a supportive wellness coach. Listen first, validate, then offer practical next steps grounded in what the person has shared. Warm, plain-spoken, no jargon. Never diagnose or prescribe.`,
	Short: `You are a supportive wellness coach. Be warm, practical, and concise.`,
}

// PersonaService serves persona prompt text. Templates are consumed as
// opaque text: this service selects and delivers them, never edits
// their wording. A YAML file can replace the embedded defaults and is
// hot-reloaded on change.
type PersonaService struct {
	mu       sync.RWMutex
	personas personaSet
	filePath string
}

// NewPersonaService creates a persona service, loading the optional
// override file and starting a watcher on it.
func NewPersonaService(filePath string) *PersonaService {
	s := &PersonaService{
		personas: defaultPersonas,
		filePath: filePath,
	}

	if filePath != "" {
		if err := s.loadFile(); err != nil {
			log.Printf("⚠️ [PERSONA] Cannot load %s: %v (using embedded defaults)", filePath, err)
		}
		go s.watchFile()
	}

	return s
}

// Get returns the persona text for a variant. Unknown variants fall
// back to the short persona so the assembler always has something.
func (s *PersonaService) Get(variant string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch variant {
	case PersonaFull:
		return s.personas.Full
	case PersonaMedium:
		return s.personas.Medium
	default:
		return s.personas.Short
	}
}

// SelectVariant picks a persona variant from conversation maturity:
// message count, stored memory presence, and the new-topic flag.
func SelectVariant(messageCount int, hasMemory, newTopic bool) string {
	if newTopic || messageCount <= 4 || !hasMemory {
		return PersonaFull
	}
	if messageCount <= 12 {
		return PersonaMedium
	}
	return PersonaShort
}

func (s *PersonaService) loadFile() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var loaded personaSet
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return err
	}

	// Missing variants keep their defaults
	s.mu.Lock()
	if loaded.Full != "" {
		s.personas.Full = loaded.Full
	}
	if loaded.Medium != "" {
		s.personas.Medium = loaded.Medium
	}
	if loaded.Short != "" {
		s.personas.Short = loaded.Short
	}
	s.mu.Unlock()

	log.Printf("✅ [PERSONA] Loaded persona templates from %s", s.filePath)
	return nil
}

// watchFile watches the persona file for changes and hot-reloads it
func (s *PersonaService) watchFile() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️ [PERSONA] Failed to create file watcher: %v", err)
		return
	}

	absPath, err := filepath.Abs(s.filePath)
	if err != nil {
		log.Printf("⚠️ [PERSONA] Failed to get absolute path for %s: %v", s.filePath, err)
		watcher.Close()
		return
	}

	// Watch the directory containing the file (more reliable than
	// watching the file directly)
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️ [PERSONA] Failed to watch directory %s: %v", dir, err)
		watcher.Close()
		return
	}

	log.Printf("👁️ [PERSONA] Watching %s for changes (hot-reload enabled)", s.filePath)

	// Debounce to avoid multiple reloads for rapid file changes
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := s.loadFile(); err != nil {
						log.Printf("❌ [PERSONA] Failed to reload personas: %v", err)
					}
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ [PERSONA] File watcher error: %v", err)
		}
	}
}
