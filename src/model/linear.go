package model

import (
	"fmt"
	"math"

	"github.com/ezoic/scigo/linear"
	"github.com/ezoic/scigo/metrics"
	"gonum.org/v1/gonum/mat"
)

// LinearRegression 带截距的普通最小二乘回归
type LinearRegression struct {
	inner *linear.LinearRegression
	n     int
}

func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

// Fit 样本数必须多于特征数, 否则正规方程无唯一解
func (m *LinearRegression) Fit(X mat.Matrix, y []float64) error {
	r, c, err := checkXY(X, y)
	if err != nil {
		return fmt.Errorf("linear: %w", err)
	}
	if r < c+1 {
		return fmt.Errorf("linear: 样本%d条少于参数%d个: %w", r, c+1, ErrInsufficientData)
	}

	inner := linear.NewLinearRegression()
	if err := inner.Fit(X, column(y)); err != nil {
		return fmt.Errorf("linear: 求解失败: %w", err)
	}
	m.inner = inner
	m.n = c
	return nil
}

func (m *LinearRegression) Predict(X mat.Matrix) ([]float64, error) {
	if m.inner == nil {
		return nil, ErrNotFitted
	}
	if _, c := X.Dims(); c != m.n {
		return nil, fmt.Errorf("linear: 期望%d列, 实际%d列: %w", m.n, c, ErrDimensionMismatch)
	}
	pred, err := m.inner.Predict(X)
	if err != nil {
		return nil, fmt.Errorf("linear: %w", err)
	}
	return mat.Col(nil, 0, pred), nil
}

// Score 返回决定系数R²
func (m *LinearRegression) Score(X mat.Matrix, y []float64) (float64, error) {
	if _, _, err := checkXY(X, y); err != nil {
		return 0, fmt.Errorf("linear: %w", err)
	}
	pred, err := m.Predict(X)
	if err != nil {
		return 0, err
	}
	return RSquared(y, pred), nil
}

func (m *LinearRegression) Coefficients() []float64 {
	if m.inner == nil {
		return nil
	}
	return m.inner.GetWeights()
}

func (m *LinearRegression) Intercept() float64 {
	if m.inner == nil {
		return 0
	}
	return m.inner.GetIntercept()
}

// RSquared 1 - SSres/SStot; y为常数或长度不符时返回NaN
func RSquared(y, pred []float64) float64 {
	if len(y) == 0 || len(y) != len(pred) {
		return math.NaN()
	}
	r2, err := metrics.R2Score(mat.NewVecDense(len(y), y), mat.NewVecDense(len(pred), pred))
	if err != nil {
		return math.NaN()
	}
	return r2
}

// RMSE 均方根误差
func RMSE(y, pred []float64) float64 {
	if len(y) == 0 || len(y) != len(pred) {
		return math.NaN()
	}
	v, err := metrics.RMSE(mat.NewVecDense(len(y), y), mat.NewVecDense(len(pred), pred))
	if err != nil {
		return math.NaN()
	}
	return v
}
