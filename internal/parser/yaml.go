package parser

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// YAMLParser parses plan documents in YAML format.
type YAMLParser struct{}

// NewYAMLParser creates a YAML plan parser.
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

// yamlValidation mirrors models.Validation for document parsing.
type yamlValidation struct {
	Kind       string `yaml:"kind"`
	Path       string `yaml:"path"`
	Substring  string `yaml:"substring"`
	ExitStatus int    `yaml:"exit_status"`
	MinBytes   int64  `yaml:"min_bytes"`
}

// yamlPolicy mirrors models.ErrorPolicy, with the delay as a duration string.
type yamlPolicy struct {
	Action     string `yaml:"action"`
	MaxRetries int    `yaml:"max_retries"`
	RetryDelay string `yaml:"retry_delay"`
	OnExhaust  string `yaml:"on_exhaust"`
}

// yamlStep mirrors models.Step, with the timeout as a duration string.
type yamlStep struct {
	Index       int               `yaml:"index"`
	Description string            `yaml:"description"`
	Operation   string            `yaml:"operation"`
	Params      map[string]string `yaml:"params"`
	Validations []yamlValidation  `yaml:"validations"`
	OnError     *yamlPolicy       `yaml:"on_error"`
	DependsOn   []int             `yaml:"depends_on"`
	Timeout     string            `yaml:"timeout"`
}

// yamlPlan is the document schema: a metadata header followed by the
// ordered step sections. Durations are human-readable strings ("30s").
type yamlPlan struct {
	ID             string           `yaml:"id"`
	Version        int              `yaml:"version"`
	Goal           string           `yaml:"goal"`
	Tags           []string         `yaml:"tags"`
	RiskLevel      string           `yaml:"risk_level"`
	EstimatedCost  float64          `yaml:"estimated_cost"`
	EstimatedTime  string           `yaml:"estimated_time"`
	Confidence     float64          `yaml:"confidence"`
	SuccessRate    float64          `yaml:"success_rate"`
	CreatedAt      time.Time        `yaml:"created_at"`
	LastUsedAt     time.Time        `yaml:"last_used_at"`
	Preconditions  []yamlValidation `yaml:"preconditions"`
	Postconditions []yamlValidation `yaml:"postconditions"`
	Steps          []yamlStep       `yaml:"steps"`
}

// Parse reads a YAML plan document. Structural validation beyond schema
// shape is left to models.Plan.Validate, which callers run via ParseFile.
func (p *YAMLParser) Parse(r io.Reader) (*models.Plan, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}

	return buildPlan(content)
}

// buildPlan converts raw YAML into a models.Plan.
func buildPlan(content []byte) (*models.Plan, error) {
	var doc yamlPlan
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, &models.PlanParseError{Reason: "invalid YAML", Err: err}
	}

	estimatedTime, err := parseDuration(doc.EstimatedTime, "estimated_time")
	if err != nil {
		return nil, err
	}

	plan := &models.Plan{
		ID:            doc.ID,
		Version:       doc.Version,
		GoalSignature: doc.Goal,
		Tags:          doc.Tags,
		RiskLevel:     doc.RiskLevel,
		EstimatedCost: doc.EstimatedCost,
		EstimatedTime: estimatedTime,
		Trust: models.TrustMetadata{
			Confidence:  doc.Confidence,
			SuccessRate: doc.SuccessRate,
			CreatedAt:   doc.CreatedAt,
			LastUsedAt:  doc.LastUsedAt,
		},
	}

	for _, v := range doc.Preconditions {
		plan.Preconditions = append(plan.Preconditions, buildValidation(v))
	}
	for _, v := range doc.Postconditions {
		plan.Postconditions = append(plan.Postconditions, buildValidation(v))
	}

	for i, ys := range doc.Steps {
		step, err := buildStep(ys, i)
		if err != nil {
			return nil, err
		}
		plan.Steps = append(plan.Steps, step)
	}

	return plan, nil
}

func buildStep(ys yamlStep, position int) (models.Step, error) {
	index := ys.Index
	if index == 0 {
		// Index defaults to document order when omitted.
		index = position + 1
	}

	timeout, err := parseDuration(ys.Timeout, fmt.Sprintf("step %d timeout", index))
	if err != nil {
		return models.Step{}, err
	}

	step := models.Step{
		Index:       index,
		Description: ys.Description,
		Operation:   ys.Operation,
		Params:      ys.Params,
		DependsOn:   ys.DependsOn,
		Timeout:     timeout,
	}

	for _, v := range ys.Validations {
		step.Validations = append(step.Validations, buildValidation(v))
	}

	if ys.OnError != nil {
		delay, err := parseDuration(ys.OnError.RetryDelay, fmt.Sprintf("step %d retry_delay", index))
		if err != nil {
			return models.Step{}, err
		}
		step.OnError = models.ErrorPolicy{
			Action:     ys.OnError.Action,
			MaxRetries: ys.OnError.MaxRetries,
			RetryDelay: delay,
			OnExhaust:  ys.OnError.OnExhaust,
		}
	}

	return step, nil
}

func buildValidation(v yamlValidation) models.Validation {
	return models.Validation{
		Kind:       v.Kind,
		Path:       v.Path,
		Substring:  v.Substring,
		ExitStatus: v.ExitStatus,
		MinBytes:   v.MinBytes,
	}
}

// parseDuration converts an optional duration string ("30s", "2m") into
// a time.Duration. Empty means zero.
func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &models.PlanParseError{Reason: fmt.Sprintf("invalid duration for %s: %q", field, s), Err: err}
	}
	if d < 0 {
		return 0, &models.PlanParseError{Reason: fmt.Sprintf("negative duration for %s: %q", field, s)}
	}
	return d, nil
}
