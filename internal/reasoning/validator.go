package reasoning

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wonny/scout/backend/internal/contracts"
)

// wire types mirror the JSON contract with pointers so that absence is detectable
type wireDecision struct {
	Symbol              *string       `json:"symbol" validate:"required,min=1"`
	LLMGrade            *string       `json:"llm_grade" validate:"required,oneof=S A B C D"`
	Strategy            *wireStrategy `json:"market_regime_strategy" validate:"required"`
	Risk                *wireRisk     `json:"risk_assessment" validate:"required"`
	SuggestedEntryFocus *string       `json:"suggested_entry_focus"`
}

type wireStrategy struct {
	Decision   *string `json:"decision" validate:"required,oneof=TRADABLE SKIP"`
	Type       *string `json:"strategy_type" validate:"required,oneof=SNIPE_DIP MOMENTUM_BREAKOUT DO_NOT_TRADE"`
	Rationale  *string `json:"rationale" validate:"required"`
	Confidence *int    `json:"confidence_score" validate:"required,min=0,max=100"`
}

type wireRisk struct {
	Volatility  *string `json:"volatility_risk" validate:"required,oneof=LOW MEDIUM HIGH"`
	Fundamental *string `json:"fundamental_risk" validate:"required,oneof=LOW MEDIUM HIGH"`
}

// Validator checks raw reasoning output against the decision contract.
// Nothing is coerced; every failing field is reported.
// ⭐ SSOT: LLM 응답 검증은 여기서만
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator that reports JSON field names
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate parses raw text (optionally fenced) into a StructuredDecision.
// Each well-formed JSON object in the text is tried in order; the first error is reported.
func (v *Validator) Validate(raw string) (*contracts.StructuredDecision, error) {
	candidates, balanced := jsonObjects(raw)
	if len(candidates) == 0 {
		if balanced {
			return nil, &contracts.ValidationError{Message: "malformed JSON", Err: errors.New("no balanced object is valid JSON")}
		}
		return nil, &contracts.ValidationError{Message: "no JSON object in response"}
	}

	var firstErr error
	for _, body := range candidates {
		d, err := v.validateObject(body)
		if err == nil {
			return d, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func (v *Validator) validateObject(body string) (*contracts.StructuredDecision, error) {
	var w wireDecision
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(&w); err != nil {
		verr := &contracts.ValidationError{Message: "malformed JSON", Err: err}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			verr.Fields = []contracts.FieldError{{Field: typeErr.Field, Message: "expected " + typeErr.Type.String()}}
		}
		return nil, verr
	}

	var fields []contracts.FieldError
	if err := v.validate.Struct(&w); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, &contracts.ValidationError{Message: "validation failed", Err: err}
		}
		for _, fe := range verrs {
			fields = append(fields, contracts.FieldError{Field: fieldPath(fe.Namespace()), Message: tagMessage(fe)})
		}
	}
	if len(fields) > 0 {
		return nil, &contracts.ValidationError{Code: deref(w.Symbol), Fields: fields}
	}

	return toDecision(&w)
}

// toDecision parses every enum with an exhaustive switch
func toDecision(w *wireDecision) (*contracts.StructuredDecision, error) {
	var fields []contracts.FieldError
	fail := func(field string, err error) {
		fields = append(fields, contracts.FieldError{Field: field, Message: err.Error()})
	}

	grade, err := contracts.ParseGrade(*w.LLMGrade)
	if err != nil {
		fail("llm_grade", err)
	}
	decision, err := contracts.ParseDecision(*w.Strategy.Decision)
	if err != nil {
		fail("market_regime_strategy.decision", err)
	}
	stype, err := contracts.ParseStrategyType(*w.Strategy.Type)
	if err != nil {
		fail("market_regime_strategy.strategy_type", err)
	}
	vol, err := contracts.ParseRiskLevel(*w.Risk.Volatility)
	if err != nil {
		fail("risk_assessment.volatility_risk", err)
	}
	fund, err := contracts.ParseRiskLevel(*w.Risk.Fundamental)
	if err != nil {
		fail("risk_assessment.fundamental_risk", err)
	}
	if len(fields) > 0 {
		return nil, &contracts.ValidationError{Code: *w.Symbol, Fields: fields}
	}

	return &contracts.StructuredDecision{
		Symbol:   *w.Symbol,
		LLMGrade: grade,
		Strategy: contracts.Strategy{
			Decision:   decision,
			Type:       stype,
			Rationale:  *w.Strategy.Rationale,
			Confidence: *w.Strategy.Confidence,
		},
		Risk: contracts.RiskAssessment{
			Volatility:  vol,
			Fundamental: fund,
		},
		SuggestedEntryFocus: deref(w.SuggestedEntryFocus),
	}, nil
}

// ExtractJSONObject returns the first balanced top-level object in s that is
// valid JSON, skipping markdown fences, prose and brace-wrapped non-JSON text
func ExtractJSONObject(s string) (string, bool) {
	candidates, _ := jsonObjects(s)
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[0], true
}

// jsonObjects lists the balanced objects in s that are valid JSON, in order.
// balanced reports whether any balanced object was seen at all.
func jsonObjects(s string) (valid []string, balanced bool) {
	for i := 0; i < len(s); {
		start := strings.IndexByte(s[i:], '{')
		if start < 0 {
			break
		}
		start += i

		end, ok := balancedEnd(s, start)
		if !ok {
			i = start + 1
			continue
		}
		balanced = true
		if obj := s[start : end+1]; json.Valid([]byte(obj)) {
			valid = append(valid, obj)
			i = end + 1
			continue
		}
		// 유효하지 않으면 안쪽의 객체도 후보
		i = start + 1
	}
	return valid, balanced
}

// balancedEnd returns the index of the brace closing the one at start
func balancedEnd(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// fieldPath drops the root struct name: "wireDecision.risk_assessment.x" -> "risk_assessment.x"
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "oneof":
		return "must be one of [" + fe.Param() + "], got " + valueString(fe.Value())
	case "min":
		return "must be >= " + fe.Param()
	case "max":
		return "must be <= " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

func valueString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	return string(b)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
