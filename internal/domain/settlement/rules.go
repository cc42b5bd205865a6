package settlement

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ContentRules - быстрые локальные проверки отчёта до внешнего ревьюера.
type ContentRules struct {
	MinTextLength   int `yaml:"min_text_length" validate:"gte=1"`
	MaxTextLength   int `yaml:"max_text_length" validate:"gtfield=MinTextLength"`
	MinActions      int `yaml:"min_actions" validate:"gte=0"`
	MaxActions      int `yaml:"max_actions" validate:"gtefield=MinActions"`
	MinActionLength int `yaml:"min_action_length" validate:"gte=0"`
}

func DefaultContentRules() ContentRules {
	return ContentRules{
		MinTextLength:   200,
		MaxTextLength:   5000,
		MinActions:      2,
		MaxActions:      10,
		MinActionLength: 10,
	}
}

// LoadContentRules читает правила из yaml. Пустой путь - значения по умолчанию,
// отсутствующие в файле поля тоже берутся из умолчаний.
func LoadContentRules(path string) (ContentRules, error) {
	rules := DefaultContentRules()
	if path == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ContentRules{}, fmt.Errorf("qc rules: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return ContentRules{}, fmt.Errorf("qc rules: parse %s: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return ContentRules{}, err
	}
	return rules, nil
}

func (r ContentRules) Validate() error {
	if err := validator.New().Struct(r); err != nil {
		return fmt.Errorf("qc rules: %w", err)
	}
	return nil
}

// Check возвращает причины отказа; пустой список значит, что отчёт можно отдавать ревьюеру.
func (r ContentRules) Check(text string, actions []string) []string {
	var reasons []string

	length := utf8.RuneCountInString(strings.TrimSpace(text))
	if length < r.MinTextLength {
		reasons = append(reasons, "text_too_short")
	}
	if r.MaxTextLength > 0 && length > r.MaxTextLength {
		reasons = append(reasons, "text_too_long")
	}

	if len(actions) < r.MinActions {
		reasons = append(reasons, "too_few_actions")
	}
	if r.MaxActions > 0 && len(actions) > r.MaxActions {
		reasons = append(reasons, "too_many_actions")
	}

	seen := make(map[string]struct{}, len(actions))
	short, dup := false, false
	for _, a := range actions {
		a = strings.TrimSpace(a)
		if utf8.RuneCountInString(a) < r.MinActionLength {
			short = true
		}
		k := strings.ToLower(a)
		if _, ok := seen[k]; ok {
			dup = true
		}
		seen[k] = struct{}{}
	}
	if short {
		reasons = append(reasons, "action_too_short")
	}
	if dup {
		reasons = append(reasons, "duplicate_actions")
	}
	return reasons
}
