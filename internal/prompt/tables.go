package prompt

import (
	"github.com/wonny/scout/backend/internal/contracts"
)

// framing is the regime-specific role text
type framing struct {
	Role     string
	Goal     string
	Warnings []string
	Task     string
}

// regimeFraming is keyed by regime label
// ⭐ SSOT: 국면별 프롬프트 문구는 이 테이블에서만
var regimeFraming = map[contracts.RegimeLabel]framing{
	contracts.RegimeBear: {
		Role: "당신은 매우 보수적인 슈퍼리치 자산관리자이자 퀀트 트레이더입니다.",
		Goal: "최우선 목표는 \"자본 보존\"이며, 그 다음이 \"알파 창출\"입니다.",
		Warnings: []string{
			"변동성이 매우 크며 시스템 리스크가 존재합니다.",
			"대부분의 종목이 하락 중입니다.",
			"현금이 왕입니다. 평범한 종목은 추천하지 마세요.",
		},
		Task: "아래 종목 정보를 보고, 하락장에서도 예외적으로 매수할 가치가 있는지 판단하세요.",
	},
	contracts.RegimeSideways: {
		Role: "당신은 규율 있는 퀀트 트레이더입니다.",
		Goal: "뚜렷한 방향성이 없는 장에서 근거가 명확한 기회만 선별합니다.",
		Warnings: []string{
			"지수는 박스권에 머물러 있습니다.",
			"추세 추종보다 가격 위치와 수급을 우선 확인하세요.",
		},
		Task: "아래 종목 정보를 보고, 박스권 장세에서 매수할 근거가 충분한지 판단하세요.",
	},
	contracts.RegimeBull: {
		Role: "당신은 추세를 존중하는 퀀트 트레이더입니다.",
		Goal: "상승 추세에 올라타되 과열 종목은 걸러냅니다.",
		Warnings: []string{
			"지수는 상승 추세입니다.",
			"과열 신호(RSI, 이격도)가 있는 종목은 보수적으로 평가하세요.",
		},
		Task: "아래 종목 정보를 보고, 상승장에서 매수할 가치가 있는지 판단하세요.",
	},
}

// strategyOption describes one closed strategy choice
type strategyOption struct {
	Type        contracts.StrategyType
	Description string
}

var strategyOptions = []strategyOption{
	{contracts.StrategyDoNotTrade, "대부분의 경우 기본값입니다. 추천 가치가 없으면 반드시 이 전략을 선택하세요."},
	{contracts.StrategySnipeDip, "우량주가 시장 공포로 과도하게 하락한 상황. 과매도 구간에서 저점 매수."},
	{contracts.StrategyMomentumBreakout, "시장 약세에도 상대적 강세를 보이며 상승 중인 섹터 리더."},
}

// Persona is a named reasoning viewpoint with a fixed bias
type Persona struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Stance   string `json:"stance"` // Bull, Bear, Quant
	Identity string `json:"identity"`
	Frame    string `json:"frame"`
	Logic    string `json:"logic"`
	Style    string `json:"style"`
}

// Persona stances
const (
	StanceBull  = "Bull"
	StanceBear  = "Bear"
	StanceQuant = "Quant"
)

// Persona table. Names stay fixed; bull/bear frames swap with the quant score.
var (
	GrowthBull = Persona{
		Key:      "growth_bull",
		Name:     "준호",
		Stance:   StanceBull,
		Identity: "Macro Strategist & Momentum Believer",
		Frame:    "기회비용 관점. \"이 파도를 놓치면 후회한다.\"",
		Logic:    "거시경제 흐름, 수급의 폭발력, 성장 스토리에 집중.",
		Style:    "\"물 들어올 때 노 저어야지\"",
	}
	RiskBear = Persona{
		Key:      "risk_bear",
		Name:     "민지",
		Stance:   StanceBear,
		Identity: "Technical Analyst & Risk Manager",
		Frame:    "손실방어 관점. \"틀렸을 때 얼마나 아픈가?\"",
		Logic:    "기술적 과열(RSI/Bollinger), 밸류에이션 부담, 차익실현 리스크에 집중.",
		Style:    "\"숫자는 과열이라고 말합니다\"",
	}
	ValueBull = Persona{
		Key:      "value_bull",
		Name:     "민지",
		Stance:   StanceBull,
		Identity: "Technical Analyst & Risk Manager",
		Frame:    "안전마진 관점. \"더 잃을 게 없는 자리인가?\"",
		Logic:    "기술적 과매도, 역사적 저점 지지선, 펀더멘털 대비 과도한 공포에 집중.",
		Style:    "\"데이터상 명백한 과매도입니다\"",
	}
	MacroBear = Persona{
		Key:      "macro_bear",
		Name:     "준호",
		Stance:   StanceBear,
		Identity: "Macro Strategist & Momentum Believer",
		Frame:    "추세추종 관점. \"추세가 죽었는데 왜 사는가?\"",
		Logic:    "매크로 환경 악화, 하락 사이클 진입, 모멘텀 소멸에 집중.",
		Style:    "\"떨어지는 칼날은 잡는 거 아냐\"",
	}
	QuantJudge = Persona{
		Key:      "quant_judge",
		Name:     "서연",
		Stance:   StanceQuant,
		Identity: "Quant Analyst & Final Arbiter",
		Frame:    "정량 관점. \"팩터가 이미 말한 것을 뒤집을 근거가 있는가?\"",
		Logic:    "퀀트 점수와 팩터 기여도를 기준점으로 삼고, 토론의 정성 근거로는 제한적으로만 조정.",
		Style:    "\"숫자가 허락하는 만큼만 움직입니다\"",
	}
)

// PersonaFlipScore is the quant score at which the pairing switches
const PersonaFlipScore = 50.0

// SelectPersonas returns the bull/bear pairing for a quant score plus the quant judge
func SelectPersonas(quantScore float64) []Persona {
	if quantScore >= PersonaFlipScore {
		return []Persona{GrowthBull, RiskBear, QuantJudge}
	}
	return []Persona{ValueBull, MacroBear, QuantJudge}
}

// debateMood labels the market sentiment implied by the quant score
func debateMood(quantScore float64) string {
	if quantScore >= PersonaFlipScore {
		return "Positive/Overheated"
	}
	return "Negative/Fearful"
}
