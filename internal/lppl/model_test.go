package lppl

import (
	"math"
	"testing"
)

func TestEvaluateDomainGuard(t *testing.T) {
	p := Parameters{Tc: 100, M: 0.5, Omega: 8, A: 5, B: -0.3, C1: 0.05, C2: 0.02}

	if _, ok := p.Evaluate(50); !ok {
		t.Fatalf("tc 之前的点应当可以求值")
	}
	if _, ok := p.Evaluate(100); ok {
		t.Fatalf("t == tc 处模型无定义")
	}
	if _, ok := p.Evaluate(150); ok {
		t.Fatalf("t > tc 处模型无定义")
	}
}

func TestEvaluateMatchesClosedForm(t *testing.T) {
	p := Parameters{Tc: 430, M: 0.33, Omega: 8.5, A: 5, B: -0.25, C1: 0.03, C2: 0.02}
	for _, tt := range []float64{0, 10, 200, 399} {
		got, ok := p.Evaluate(tt)
		if !ok {
			t.Fatalf("t=%v 求值失败", tt)
		}
		dt := p.Tc - tt
		pow := math.Pow(dt, p.M)
		phase := p.Omega * math.Log(dt)
		want := p.A + p.B*pow + p.C1*pow*math.Cos(phase) + p.C2*pow*math.Sin(phase)
		if math.Abs(got-want) > 1e-12 {
			t.Fatalf("t=%v: got %v want %v", tt, got, want)
		}
	}
}

func TestDerivedAmplitudeAndPhase(t *testing.T) {
	p := Parameters{C1: 0.3, C2: -0.4}
	if got := p.C(); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("C = %v, want 0.5", got)
	}
	if got := p.Phi(); math.Abs(got-math.Atan2(0.4, 0.3)) > 1e-12 {
		t.Fatalf("Phi = %v", got)
	}
}

func TestBasisRejectsNonPositiveDelta(t *testing.T) {
	var dst [4]float64
	if basis(10, 0.5, 8, 10, dst[:]) {
		t.Fatalf("Δ=0 应当被拒绝")
	}
	if basis(10, 0.5, 8, 15, dst[:]) {
		t.Fatalf("Δ<0 应当被拒绝")
	}
	if !basis(10, 0.5, 8, 5, dst[:]) {
		t.Fatalf("Δ>0 应当可用")
	}
	if dst[0] != 1 {
		t.Fatalf("常数列应为 1")
	}
}
