package usecase

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/riskibarqy/redial/internal/domain/scripttemplate"
	idgen "github.com/riskibarqy/redial/internal/platform/id"
)

// TemplateService manages call script templates and renders them into the
// final script at enqueue time. Rendering uses missingkey=error so a job can
// never reach a provider with an unresolved placeholder.
type TemplateService struct {
	repo  scripttemplate.Repository
	idGen idgen.Generator
	now   func() time.Time
}

func NewTemplateService(repo scripttemplate.Repository, idGen idgen.Generator) *TemplateService {
	return &TemplateService{
		repo:  repo,
		idGen: idGen,
		now:   time.Now,
	}
}

type CreateTemplateInput struct {
	Name        string
	Description string
	Body        string
}

func (s *TemplateService) Create(ctx context.Context, input CreateTemplateInput) (scripttemplate.Template, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return scripttemplate.Template{}, fmt.Errorf("%w: template name is required", ErrInvalidInput)
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return scripttemplate.Template{}, fmt.Errorf("%w: template body is required", ErrInvalidInput)
	}
	if _, err := parseScriptTemplate(name, body); err != nil {
		return scripttemplate.Template{}, fmt.Errorf("%w: template body does not parse: %v", ErrInvalidInput, err)
	}

	templateID, err := s.idGen.NewID()
	if err != nil {
		return scripttemplate.Template{}, fmt.Errorf("generate template id: %w", err)
	}

	now := s.now().UTC()
	item := scripttemplate.Template{
		ID:          templateID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Body:        body,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		if isDuplicateConstraintError(err) {
			return scripttemplate.Template{}, fmt.Errorf("%w: template name %q already exists", ErrInvalidInput, name)
		}
		return scripttemplate.Template{}, fmt.Errorf("create template: %w", err)
	}
	return item, nil
}

func (s *TemplateService) Get(ctx context.Context, templateID string) (scripttemplate.Template, error) {
	templateID = strings.TrimSpace(templateID)
	if templateID == "" {
		return scripttemplate.Template{}, fmt.Errorf("%w: template id is required", ErrInvalidInput)
	}

	item, exists, err := s.repo.GetByID(ctx, templateID)
	if err != nil {
		return scripttemplate.Template{}, fmt.Errorf("get template=%s: %w", templateID, err)
	}
	if !exists {
		return scripttemplate.Template{}, fmt.Errorf("%w: template=%s", ErrNotFound, templateID)
	}
	return item, nil
}

func (s *TemplateService) List(ctx context.Context) ([]scripttemplate.Template, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return items, nil
}

// RenderScript satisfies ScriptRenderer for the enqueue path.
func (s *TemplateService) RenderScript(ctx context.Context, templateID string, variables map[string]string) (string, error) {
	item, err := s.Get(ctx, templateID)
	if err != nil {
		return "", err
	}

	parsed, err := parseScriptTemplate(item.Name, item.Body)
	if err != nil {
		return "", fmt.Errorf("%w: stored template=%s does not parse: %v", ErrInvalidInput, templateID, err)
	}

	data := make(map[string]string, len(variables))
	for key, value := range variables {
		data[key] = value
	}

	var builder strings.Builder
	if err := parsed.Execute(&builder, data); err != nil {
		return "", fmt.Errorf("%w: render template=%s: %v", ErrInvalidInput, templateID, err)
	}

	script := strings.TrimSpace(builder.String())
	if script == "" {
		return "", fmt.Errorf("%w: template=%s rendered an empty script", ErrInvalidInput, templateID)
	}
	return script, nil
}

func parseScriptTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Option("missingkey=error").Parse(body)
}
