package keywords

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ymatsuda/docsearch/internal/core/domain"
)

// categoriesFile is the on-disk shape of the domain-keyword source.
type categoriesFile struct {
	Domains []struct {
		Name  string   `yaml:"name"`
		Terms []string `yaml:"terms"`
	} `yaml:"domains"`
	GenericTitleTerms []string `yaml:"generic_title_terms"`
	Stopwords         []string `yaml:"stopwords"`
	NegativeWords     []string `yaml:"negative_words"`
	IntentKeywords    []string `yaml:"intent_keywords"`
}

// Source holds the process-wide read-only vocabulary. Initialize wins once;
// later calls are no-ops so concurrent bootstrap paths cannot flip the
// vocabulary mid-flight.
type Source struct {
	mu          sync.Mutex
	initialized bool
	vocab       domain.Vocabulary
}

func NewSource() *Source {
	return &Source{}
}

// Initialize installs the vocabulary. Idempotent: only the first call takes
// effect.
func (s *Source) Initialize(vocab domain.Vocabulary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return
	}
	s.vocab = vocab
	s.initialized = true
}

// InitializeFromFile loads the YAML category file and installs it. Domain
// names themselves count as domain terms alongside their listed terms.
func (s *Source) InitializeFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read keyword categories: %w", err)
	}
	var file categoriesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse keyword categories: %w", err)
	}

	vocab := domain.Vocabulary{
		GenericTitleTerms: file.GenericTitleTerms,
		Stopwords:         file.Stopwords,
		NegativeWords:     file.NegativeWords,
		IntentKeywords:    file.IntentKeywords,
	}
	for _, category := range file.Domains {
		if category.Name != "" {
			vocab.DomainTerms = append(vocab.DomainTerms, category.Name)
		}
		vocab.DomainTerms = append(vocab.DomainTerms, category.Terms...)
	}

	s.Initialize(vocab)
	return nil
}

// Vocabulary returns the installed vocabulary. The returned slices are
// read-only by convention; the zero vocabulary is returned before
// initialization.
func (s *Source) Vocabulary() domain.Vocabulary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vocab
}
