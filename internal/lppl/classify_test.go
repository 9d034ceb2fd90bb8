package lppl

import "testing"

func fitResultWith(n int, p Parameters) FitResult {
	return FitResult{Params: p, Success: true, WindowSize: n}
}

func TestClassifyAllConditions(t *testing.T) {
	fr := fitResultWith(200, Parameters{Tc: 230, M: 0.4, Omega: 9, B: -0.3})
	cls := Classify(fr)
	if !cls.TcInRange || !cls.BNegative || !cls.MInRange || !cls.OmegaInRange {
		t.Fatalf("四项都应为真: %+v", cls)
	}
	if !cls.IsBubble || cls.Confidence != 100 {
		t.Fatalf("应判为泡沫且置信 100: %+v", cls)
	}
}

func TestClassifyTcBoundariesInclusive(t *testing.T) {
	n := 200
	lastT := float64(n - 1)
	cases := []struct {
		name    string
		tc      float64
		inRange bool
	}{
		{"正好 +5", lastT + 5, true},
		{"正好 +504", lastT + 504, true},
		{"低于下界", lastT + 4.9, false},
		{"高于上界", lastT + 504.1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cls := Classify(fitResultWith(n, Parameters{Tc: tc.tc, M: 0.5, Omega: 10, B: -0.1}))
			if cls.TcInRange != tc.inRange {
				t.Fatalf("tc=%v: TcInRange=%v, want %v", tc.tc, cls.TcInRange, tc.inRange)
			}
		})
	}
}

func TestClassifyZeroBIsNotBubble(t *testing.T) {
	cls := Classify(fitResultWith(200, Parameters{Tc: 230, M: 0.4, Omega: 9, B: 0}))
	if cls.BNegative || cls.IsBubble {
		t.Fatalf("B=0 不应判为泡沫")
	}
	if cls.Confidence != 75 {
		t.Fatalf("三项为真时置信应为 75, got %v", cls.Confidence)
	}
}

func TestClassifyFailedFit(t *testing.T) {
	cls := Classify(FitResult{Success: false, WindowSize: 200})
	if cls.IsBubble || cls.Confidence != 0 {
		t.Fatalf("失败拟合应返回零值分类: %+v", cls)
	}
}

func TestSingleFitState(t *testing.T) {
	cases := []struct {
		name string
		cls  Classification
		want string
	}{
		{"临近临界", Classification{IsBubble: true, DaysToCritical: 30, Confidence: 100}, StateCritical},
		{"远期泡沫", Classification{IsBubble: true, DaysToCritical: 120, Confidence: 100}, StateWarning},
		{"半数条件", Classification{Confidence: 50}, StateWatch},
		{"无信号", Classification{Confidence: 25}, StateNormal},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := SingleFitState(c.cls); got != c.want {
				t.Fatalf("got %s want %s", got, c.want)
			}
		})
	}
}

func TestStateFromCIBands(t *testing.T) {
	cases := []struct {
		ci   float64
		want string
	}{
		{0, StateNormal}, {19.9, StateNormal},
		{20, StateWatch}, {39.9, StateWatch},
		{40, StateWarning}, {59.9, StateWarning},
		{60, StateCritical}, {100, StateCritical},
	}
	for _, c := range cases {
		if got := StateFromCI(c.ci); got != c.want {
			t.Fatalf("CI=%v: got %s want %s", c.ci, got, c.want)
		}
	}
}
