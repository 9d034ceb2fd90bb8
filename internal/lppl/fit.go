package lppl

import (
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// 差分进化的默认形态。种群与代数按"数秒内返回"的预算取值，
// 三维搜索空间下足以稳定收敛。
const (
	dePopulation  = 20
	deGenerations = 300
	deWeight      = 0.8 // F
	deCrossover   = 0.9 // CR
	deTolerance   = 1e-6
	tieRelative   = 1e-9
)

// 参数边界。tc 的边界依赖窗口长度，运行时计算。
const (
	tcAheadMin = 5
	tcAheadMax = 504 // 两个交易年
	mLower     = 0.1
	mUpper     = 0.9
	omegaLower = 2
	omegaUpper = 25
	bLower     = -2
	bUpper     = 0
	cAbsBound  = 1
)

// DefaultRMSECeiling 拟合残差上限：对数价格残差超过该值说明
// 模型根本不描述该窗口，按失败处理。
const DefaultRMSECeiling = 0.5

// FitConfig 单窗口拟合配置。
type FitConfig struct {
	// Seed 显式随机种子；0 表示未配置（按时间取种，结果不保证可复现）。
	Seed int64
	// RMSECeiling 超过该均方根残差视为失败；<=0 取 DefaultRMSECeiling。
	RMSECeiling float64
	// MaxGenerations 差分进化代数上限；<=0 取默认。
	MaxGenerations int
}

func (c FitConfig) ceiling() float64 {
	if c.RMSECeiling > 0 {
		return c.RMSECeiling
	}
	return DefaultRMSECeiling
}

func (c FitConfig) generations() int {
	if c.MaxGenerations > 0 {
		return c.MaxGenerations
	}
	return deGenerations
}

// FitResult 单窗口拟合结果。拟合失败是窗口扫描中的正常结局，
// 通过 Success=false 表达，不作为 error 传播。
type FitResult struct {
	Params     Parameters `json:"params"`
	SSR        float64    `json:"ssr"`
	RMSE       float64    `json:"rmse"`
	Success    bool       `json:"success"`
	WindowSize int        `json:"window_size"`
	Origin     time.Time  `json:"origin"`
	End        time.Time  `json:"end"`
}

// Fitter 持有一次扫描内可复用的工作缓冲，避免每窗口重复分配。
// 并发扫描时每个 worker 各持有一个 Fitter。
type Fitter struct {
	cap    int
	design []float64 // N×4 设计矩阵底层存储
	beta   mat.VecDense
	pop    [][3]float64
	cost   []float64
	trial  [3]float64
}

// NewFitter 预分配容量为 maxN 个观测的工作区。
func NewFitter(maxN int) *Fitter {
	if maxN < MinObservations {
		maxN = MinObservations
	}
	return &Fitter{
		cap:    maxN,
		design: make([]float64, maxN*4),
		pop:    make([][3]float64, dePopulation),
		cost:   make([]float64, dePopulation),
	}
}

// Fit 在窗口上拟合 LPPL 参数：外层差分进化搜索 (tc, m, ω)，
// 内层对 (A, B, C1, C2) 做带约束检查的最小二乘闭式求解。
func (f *Fitter) Fit(w *Window, cfg FitConfig) FitResult {
	n := w.N()
	out := FitResult{WindowSize: n, Origin: w.Origin(), End: w.End()}
	if n < MinObservations || n > f.cap {
		return out
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	yMin := floats.Min(w.Y)
	yMax := floats.Max(w.Y)
	if yMax-yMin < 1e-12 {
		// 常数序列上模型不可辨识
		return out
	}
	lastT := w.T[n-1]
	lo := [3]float64{lastT + tcAheadMin, mLower, omegaLower}
	hi := [3]float64{lastT + tcAheadMax, mUpper, omegaUpper}

	// 初始种群：边界内均匀采样
	for i := range f.pop {
		for d := 0; d < 3; d++ {
			f.pop[i][d] = lo[d] + rng.Float64()*(hi[d]-lo[d])
		}
		f.cost[i] = f.objective(w, f.pop[i], yMin, yMax, nil)
	}

	bestIdx := argmin(f.cost)
	best := f.pop[bestIdx]
	bestCost := f.cost[bestIdx]

	gens := cfg.generations()
	for g := 0; g < gens; g++ {
		improved := false
		for i := range f.pop {
			a, b, c := pickThree(rng, len(f.pop), i)
			jr := rng.Intn(3)
			for d := 0; d < 3; d++ {
				if d == jr || rng.Float64() < deCrossover {
					v := f.pop[a][d] + deWeight*(f.pop[b][d]-f.pop[c][d])
					// 越界分量在边界内重新均匀采样
					if v < lo[d] || v > hi[d] {
						v = lo[d] + rng.Float64()*(hi[d]-lo[d])
					}
					f.trial[d] = v
				} else {
					f.trial[d] = f.pop[i][d]
				}
			}
			trialCost := f.objective(w, f.trial, yMin, yMax, nil)
			if trialCost <= f.cost[i] {
				f.pop[i] = f.trial
				f.cost[i] = trialCost
			}
			if betterCandidate(trialCost, f.trial, bestCost, best, lastT) {
				if bestCost-trialCost > deTolerance*math.Max(1, bestCost) {
					improved = true
				}
				best = f.trial
				bestCost = trialCost
			}
		}
		// 收敛：整代无有效改进且种群目标值已聚拢
		if !improved && g > 20 && spread(f.cost) < deTolerance*math.Max(1, bestCost) {
			break
		}
	}

	if math.IsInf(bestCost, 1) {
		// 边界内未找到可行点
		return out
	}

	var lin [4]float64
	ssr := f.objective(w, best, yMin, yMax, &lin)
	if math.IsInf(ssr, 1) {
		return out
	}
	rmse := math.Sqrt(ssr / float64(n))
	out.Params = Parameters{
		Tc: best[0], M: best[1], Omega: best[2],
		A: lin[0], B: lin[1], C1: lin[2], C2: lin[3],
	}
	out.SSR = ssr
	out.RMSE = rmse
	out.Success = rmse <= cfg.ceiling()
	return out
}

// objective 返回候选 (tc, m, ω) 的残差平方和。线性子问题不可行
// （基矩阵奇异、线性参数越界、Δ≤0）时返回 +Inf。
// lin 非空时带出线性参数 (A, B, C1, C2)。
func (f *Fitter) objective(w *Window, x [3]float64, yMin, yMax float64, lin *[4]float64) float64 {
	n := w.N()
	tc, m, omega := x[0], x[1], x[2]

	d := f.design[:n*4]
	for i := 0; i < n; i++ {
		if !basis(tc, m, omega, w.T[i], d[i*4:i*4+4]) {
			return math.Inf(1)
		}
	}
	X := mat.NewDense(n, 4, d)
	y := mat.NewVecDense(n, w.Y)

	var qr mat.QR
	qr.Factorize(X)
	if err := qr.SolveVecTo(&f.beta, false, y); err != nil {
		return math.Inf(1)
	}
	a := f.beta.AtVec(0)
	b := f.beta.AtVec(1)
	c1 := f.beta.AtVec(2)
	c2 := f.beta.AtVec(3)

	// 线性参数约束：B ∈ [-2, 0]，|C1|,|C2| ≤ 1，A 在对数价范围附近
	if b < bLower || b > bUpper {
		return math.Inf(1)
	}
	if math.Abs(c1) > cAbsBound || math.Abs(c2) > cAbsBound {
		return math.Inf(1)
	}
	if a < yMin-1 || a > yMax+1 {
		return math.Inf(1)
	}

	ssr := 0.0
	for i := 0; i < n; i++ {
		pred := a*d[i*4] + b*d[i*4+1] + c1*d[i*4+2] + c2*d[i*4+3]
		r := w.Y[i] - pred
		ssr += r * r
	}
	if math.IsNaN(ssr) {
		return math.Inf(1)
	}
	if lin != nil {
		lin[0], lin[1], lin[2], lin[3] = a, b, c1, c2
	}
	return ssr
}

// betterCandidate 判断候选是否应取代当前最优。
// SSR 在 1e-9 相对容差内视为并列，并列时偏好 tc 更靠近窗口末端的解。
func betterCandidate(cost float64, x [3]float64, bestCost float64, best [3]float64, lastT float64) bool {
	if math.IsInf(cost, 1) {
		return false
	}
	if math.IsInf(bestCost, 1) {
		return true
	}
	if cost < bestCost-tieRelative*bestCost {
		return true
	}
	if cost <= bestCost+tieRelative*bestCost {
		return math.Abs(x[0]-lastT) < math.Abs(best[0]-lastT)
	}
	return false
}

// pickThree 取三个互不相同且不等于 exclude 的个体下标。
func pickThree(rng *rand.Rand, n, exclude int) (int, int, int) {
	idx := [3]int{-1, -1, -1}
	for k := 0; k < 3; k++ {
		for {
			v := rng.Intn(n)
			if v == exclude || v == idx[0] || v == idx[1] {
				continue
			}
			idx[k] = v
			break
		}
	}
	return idx[0], idx[1], idx[2]
}

func argmin(xs []float64) int {
	idx := 0
	for i, v := range xs {
		if v < xs[idx] {
			idx = i
		}
	}
	return idx
}

// spread 返回有限目标值的最大间距；全部不可行时为 +Inf。
func spread(xs []float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range xs {
		if math.IsInf(v, 1) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if math.IsInf(lo, 1) {
		return math.Inf(1)
	}
	return hi - lo
}
