package lppl

// 诊断状态标签。
const (
	StateCritical = "CRITICAL"
	StateWarning  = "WARNING"
	StateWatch    = "WATCH"
	StateNormal   = "NORMAL"
)

// Classification 四项参数区间检验及其合取。
type Classification struct {
	TcInRange    bool `json:"tc_in_range"`
	BNegative    bool `json:"B_negative"`
	MInRange     bool `json:"m_in_range"`
	OmegaInRange bool `json:"omega_in_range"`
	IsBubble     bool `json:"is_bubble"`
	// Confidence 四项中为真的比例，0-100。
	Confidence float64 `json:"confidence"`
	// DaysToCritical tc 距窗口末端的观测数。
	DaysToCritical float64 `json:"days_to_critical"`
}

// Classify 对成功的拟合结果执行泡沫条件检验。
// 失败的拟合一律返回零值（IsBubble=false）。
func Classify(fr FitResult) Classification {
	if !fr.Success {
		return Classification{}
	}
	p := fr.Params
	lastT := float64(fr.WindowSize - 1)
	days := p.Tc - lastT

	cls := Classification{
		TcInRange:      days >= tcAheadMin && days <= tcAheadMax,
		BNegative:      p.B < 0,
		MInRange:       p.M >= mLower && p.M <= mUpper,
		OmegaInRange:   p.Omega >= omegaLower && p.Omega <= omegaUpper,
		DaysToCritical: days,
	}
	cls.IsBubble = cls.TcInRange && cls.BNegative && cls.MInRange && cls.OmegaInRange

	truth := 0
	for _, ok := range []bool{cls.TcInRange, cls.BNegative, cls.MInRange, cls.OmegaInRange} {
		if ok {
			truth++
		}
	}
	cls.Confidence = float64(truth) / 4 * 100
	return cls
}

// SingleFitState 单窗口模式下的状态判定。多窗口模式以
// 置信指标分档为准（见 sweep.go），不走这条规则。
func SingleFitState(cls Classification) string {
	switch {
	case cls.IsBubble && cls.DaysToCritical <= 60 && cls.Confidence >= 75:
		return StateCritical
	case cls.IsBubble && cls.Confidence >= 75:
		return StateWarning
	case cls.Confidence >= 50:
		return StateWatch
	default:
		return StateNormal
	}
}

// StateFromCI 多窗口置信指标分档。
func StateFromCI(ci float64) string {
	switch {
	case ci >= 60:
		return StateCritical
	case ci >= 40:
		return StateWarning
	case ci >= 20:
		return StateWatch
	default:
		return StateNormal
	}
}

// StateMessage 状态的人读说明。
func StateMessage(state string) string {
	switch state {
	case StateCritical:
		return "强泡沫信号，临界点可能临近"
	case StateWarning:
		return "泡沫预警，需要关注"
	case StateWatch:
		return "存在泡沫迹象，建议持续观察"
	default:
		return "正常区间"
	}
}
