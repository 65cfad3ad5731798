package prompt

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/wonny/scout/backend/internal/contracts"
)

// NA is printed for every absent field
const NA = "N/A"

// Composer renders prompts from frozen inputs. Equal inputs give byte-identical output.
// ⭐ SSOT: 프롬프트 문서 생성은 여기서만
type Composer struct{}

// NewComposer creates a composer
func NewComposer() *Composer {
	return &Composer{}
}

// Compose renders the single-view decision prompt for a stock under a regime.
// persona is optional.
func (c *Composer) Compose(snap contracts.StockSnapshot, regime contracts.RegimeLabel, persona *Persona) string {
	fr, ok := regimeFraming[regime]
	if !ok {
		fr = regimeFraming[contracts.RegimeSideways]
	}

	var b strings.Builder
	b.WriteString("# 역할\n")
	b.WriteString(fr.Role + "\n")
	b.WriteString(fr.Goal + "\n")
	if persona != nil {
		b.WriteString("\n# 관점\n")
		writePersona(&b, *persona)
	}

	b.WriteString("\n")
	writeRegime(&b, regime, fr)

	b.WriteString("\n# 과제\n")
	b.WriteString(fr.Task + "\n\n")
	writeSnapshot(&b, snap)

	b.WriteString("\n")
	writeStrategyOptions(&b)

	b.WriteString("\n# 출력 요구사항\n")
	b.WriteString("아래 JSON 스키마를 정확히 따르십시오. JSON 외의 텍스트는 출력하지 마세요.\n")
	b.WriteString(OutputSchema(snap.Code))
	b.WriteString("\nconfidence_score 는 매우 엄격하게 책정하세요.\n")
	return b.String()
}

// ComposeDebate renders the shared debate context: the regime framing, every
// persona with its bias, the quant score, and de-duplicated sorted keywords.
func (c *Composer) ComposeDebate(snap contracts.StockSnapshot, regime contracts.RegimeLabel, quantScore float64, keywords []string, personas []Persona) string {
	fr, ok := regimeFraming[regime]
	if !ok {
		fr = regimeFraming[contracts.RegimeSideways]
	}

	var b strings.Builder
	b.WriteString("[투자 위원회 토론]\n")
	fmt.Fprintf(&b, "서로 다른 해석 프레임을 가진 전문가들이 현재 시장 분위기(%s)를 두고 논쟁합니다.\n", debateMood(quantScore))
	b.WriteString("관점의 차이가 명확히 드러나야 하며, 각자 자신의 프레임으로만 판단합니다.\n")
	b.WriteString("위원회 공통 원칙: " + fr.Goal + "\n\n")

	writeRegime(&b, regime, fr)
	b.WriteString("\n")
	writeSnapshot(&b, snap)
	fmt.Fprintf(&b, "- 퀀트 점수: %s / 100\n", strconv.FormatFloat(quantScore, 'f', 1, 64))

	kws := normalizeKeywords(keywords)
	if len(kws) == 0 {
		b.WriteString("- 키워드: " + NA + "\n")
	} else {
		b.WriteString("- 키워드: " + strings.Join(kws, ", ") + "\n")
	}

	b.WriteString("\n[등장인물]\n")
	for i, p := range personas {
		fmt.Fprintf(&b, "%d. ", i+1)
		writePersona(&b, p)
	}
	return b.String()
}

// ForPersona appends one speaker's instruction and the output schema to a debate context
func (c *Composer) ForPersona(debate string, snap contracts.StockSnapshot, p Persona) string {
	var b strings.Builder
	b.WriteString(debate)
	b.WriteString("\n[발언자]\n")
	fmt.Fprintf(&b, "당신은 %s (%s) 입니다. 위 프레임을 끝까지 유지하고 상대에게 합의하지 마세요.\n", p.Name, p.Stance)
	b.WriteString("당신의 관점에서 최종 판단을 내리세요.\n\n")
	if p.Stance == StanceQuant {
		writeQuantContext(&b, snap)
		b.WriteString("\n")
	}
	writeStrategyOptions(&b)
	b.WriteString("\n# 출력 요구사항\n")
	b.WriteString("아래 JSON 스키마를 정확히 따르십시오. JSON 외의 텍스트는 출력하지 마세요.\n")
	b.WriteString(OutputSchema(snap.Code))
	return b.String()
}

func writeRegime(b *strings.Builder, regime contracts.RegimeLabel, fr framing) {
	b.WriteString("# 현재 시장 상황\n")
	fmt.Fprintf(b, "현재 시장 국면은 '%s' 입니다.\n", regime)
	for _, w := range fr.Warnings {
		b.WriteString("- " + w + "\n")
	}
}

// writeQuantContext lists the quant score and factor contributions, largest magnitude first
func writeQuantContext(b *strings.Builder, s contracts.StockSnapshot) {
	b.WriteString("[정량 분석 결과]\n")
	if s.QuantScore == nil {
		b.WriteString("- 퀀트 점수: " + NA + "\n")
	} else {
		fmt.Fprintf(b, "- 퀀트 점수: %s / 100\n", strconv.FormatFloat(*s.QuantScore, 'f', 1, 64))
	}

	keys := make([]string, 0, len(s.Breakdown))
	for k := range s.Breakdown {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ai, aj := math.Abs(s.Breakdown[keys[i]]), math.Abs(s.Breakdown[keys[j]])
		if ai != aj {
			return ai > aj
		}
		return keys[i] < keys[j]
	})
	if len(keys) == 0 {
		b.WriteString("- 팩터 기여도: " + NA + "\n")
	}
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %+.3f\n", k, s.Breakdown[k])
	}
	b.WriteString("기본 판단은 정량 점수를 따르고, 토론에서 나온 정성 근거로만 조정하세요.\n")
}

func writePersona(b *strings.Builder, p Persona) {
	fmt.Fprintf(b, "%s (%s)\n", p.Name, p.Stance)
	fmt.Fprintf(b, "   - Identity: %s\n", p.Identity)
	fmt.Fprintf(b, "   - Frame: %s\n", p.Frame)
	fmt.Fprintf(b, "   - Logic: %s\n", p.Logic)
	fmt.Fprintf(b, "   - Style: %s\n", p.Style)
}

func writeSnapshot(b *strings.Builder, s contracts.StockSnapshot) {
	b.WriteString("[종목 스냅샷]\n")
	fmt.Fprintf(b, "- 종목명: %s (%s)\n", text(s.Name), text(s.Code))
	fmt.Fprintf(b, "- 섹터: %s\n", text(s.Sector))
	fmt.Fprintf(b, "- PER: %s, PBR: %s, ROE: %s\n",
		FormatPER(s.Fundamentals.PER), FormatPBR(s.Fundamentals.PBR), formatPercent(s.Fundamentals.ROE))
	fmt.Fprintf(b, "- 시가총액: %s\n", FormatMarketCap(s.Fundamentals.MarketCap))
	fmt.Fprintf(b, "- 모멘텀 요약: %s\n", formatPercent(s.MomentumScore))
	fmt.Fprintf(b, "- 기술적 메모: %s\n", text(s.TechnicalSummary))
	fmt.Fprintf(b, "- 팩터 근거: %s\n", formatBreakdown(s.Breakdown))
	fmt.Fprintf(b, "- 뉴스/재료 요약: %s\n", text(s.NewsReason))
}

func writeStrategyOptions(b *strings.Builder) {
	b.WriteString("# 전략 옵션 (하나만 선택)\n")
	for i, o := range strategyOptions {
		fmt.Fprintf(b, "%d. \"%s\": %s\n", i+1, o.Type, o.Description)
	}
}

// OutputSchema renders the JSON example the reasoning layer must reproduce.
// Field names and enum sets come from the decision contract.
func OutputSchema(symbol string) string {
	grades := make([]string, len(contracts.AllGrades))
	for i, g := range contracts.AllGrades {
		grades[i] = string(g)
	}
	types := make([]string, len(contracts.AllStrategyTypes))
	for i, st := range contracts.AllStrategyTypes {
		types[i] = string(st)
	}
	risk := strings.Join([]string{string(contracts.RiskLow), string(contracts.RiskMedium), string(contracts.RiskHigh)}, "|")

	if symbol == "" {
		symbol = NA
	}

	var b strings.Builder
	b.WriteString("{\n")
	fmt.Fprintf(&b, "  \"symbol\": \"%s\",\n", symbol)
	fmt.Fprintf(&b, "  \"llm_grade\": \"%s\",\n", strings.Join(grades, "|"))
	b.WriteString("  \"market_regime_strategy\": {\n")
	fmt.Fprintf(&b, "    \"decision\": \"%s|%s\",\n", contracts.DecisionTradable, contracts.DecisionSkip)
	fmt.Fprintf(&b, "    \"strategy_type\": \"%s\",\n", strings.Join(types, "|"))
	b.WriteString("    \"rationale\": \"전략 선택 이유\",\n")
	b.WriteString("    \"confidence_score\": 0~100\n")
	b.WriteString("  },\n")
	b.WriteString("  \"risk_assessment\": {\n")
	fmt.Fprintf(&b, "    \"volatility_risk\": \"%s\",\n", risk)
	fmt.Fprintf(&b, "    \"fundamental_risk\": \"%s\"\n", risk)
	b.WriteString("  },\n")
	b.WriteString("  \"suggested_entry_focus\": \"예: RSI_DIVERGENCE / VOLUME_FLUSH / BREAKOUT_LEVEL\"\n")
	b.WriteString("}\n")
	return b.String()
}

func text(s string) string {
	if strings.TrimSpace(s) == "" {
		return NA
	}
	return s
}

// FormatPER prints loss-making companies explicitly
func FormatPER(per *float64) string {
	switch {
	case per == nil:
		return NA
	case *per <= 0:
		return NA + " (적자 기업)"
	default:
		return strconv.FormatFloat(*per, 'f', 2, 64) + " 배"
	}
}

// FormatPBR prints a positive PBR, N/A otherwise
func FormatPBR(pbr *float64) string {
	if pbr == nil || *pbr <= 0 {
		return NA
	}
	return strconv.FormatFloat(*pbr, 'f', 2, 64) + " 배"
}

// FormatMarketCap prints a KRW market cap in 조 원 / 억 원 units
func FormatMarketCap(won *float64) string {
	if won == nil || *won <= 0 {
		return NA
	}
	v := *won
	switch {
	case v >= 1e12:
		return strconv.FormatFloat(v/1e12, 'f', 1, 64) + "조 원"
	case v >= 1e8:
		return groupThousands(int64(v/1e8+0.5)) + "억 원"
	default:
		return groupThousands(int64(v+0.5)) + " 원"
	}
}

func formatPercent(v *float64) string {
	if v == nil {
		return NA
	}
	return strconv.FormatFloat(*v, 'f', 1, 64) + "%"
}

// formatBreakdown lists factor contributions in key order
func formatBreakdown(breakdown map[string]float64) string {
	if len(breakdown) == 0 {
		return NA
	}
	keys := make([]string, 0, len(breakdown))
	for k := range breakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(breakdown[k], 'f', 3, 64)
	}
	return strings.Join(parts, ", ")
}

func normalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	var out []string
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
