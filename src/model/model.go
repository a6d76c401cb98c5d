// Package model 提供三个基线模型: k近邻分类、最小二乘线性回归、k-means聚类
// 回归、标准化、评估指标和聚类由 scigo 完成, 这里只做参数固定和类型转换
// 输入为 gonum 矩阵, 每行一个样本
package model

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	scigolog "github.com/ezoic/scigo/pkg/log"
	"github.com/ezoic/scigo/preprocessing"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/sampleuv"
)

var (
	ErrNotFitted         = errors.New("模型尚未训练")
	ErrInsufficientData  = errors.New("样本数量不足")
	ErrDimensionMismatch = errors.New("维度不匹配")
)

func init() {
	// scigo默认把info日志以JSON打到标准输出, 会混进控制台报告
	scigolog.SetupLogger("warn")
}

// NewSource 固定种子的随机源, 同一种子每次抽样结果相同
func NewSource(seed int64) rand.Source {
	return rand.NewPCG(uint64(seed), uint64(seed))
}

// Sample 从indices中无放回抽取size个, size<=0或不小于总数时返回打乱后的全部
func Sample(indices []int, size int, src rand.Source) []int {
	if len(indices) == 0 {
		return nil
	}
	if size <= 0 || size > len(indices) {
		size = len(indices)
	}
	pos := make([]int, size)
	sampleuv.WithoutReplacement(pos, len(indices), src)
	out := make([]int, size)
	for i, p := range pos {
		out[i] = indices[p]
	}
	return out
}

// TrainTestSplit 按testRatio切分, 训练集和测试集都至少保留一条
func TrainTestSplit(indices []int, testRatio float64, src rand.Source) (train, test []int, err error) {
	if len(indices) < 2 {
		return nil, nil, fmt.Errorf("切分训练集: %w", ErrInsufficientData)
	}
	shuffled := Sample(indices, 0, src)
	nTest := int(float64(len(shuffled)) * testRatio)
	if nTest < 1 {
		nTest = 1
	}
	if nTest > len(shuffled)-1 {
		nTest = len(shuffled) - 1
	}
	test = shuffled[:nTest]
	train = shuffled[nTest:]
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// StandardScaler 按列标准化为均值0方差1, 方差为0的列只做平移
type StandardScaler struct {
	Mean  []float64
	Scale []float64

	inner *preprocessing.StandardScaler
}

func (s *StandardScaler) Fit(X mat.Matrix) error {
	if r, c := X.Dims(); r == 0 || c == 0 {
		return fmt.Errorf("标准化: %w", ErrInsufficientData)
	}
	inner := preprocessing.NewStandardScaler(true, true)
	if err := inner.Fit(X); err != nil {
		return fmt.Errorf("标准化: %w", err)
	}
	s.inner = inner
	s.Mean = inner.Mean
	s.Scale = inner.Scale
	return nil
}

func (s *StandardScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.check(X); err != nil {
		return nil, err
	}
	out, err := s.inner.Transform(X)
	if err != nil {
		return nil, fmt.Errorf("标准化: %w", err)
	}
	return mat.DenseCopyOf(out), nil
}

// InverseTransform 还原到原始尺度
func (s *StandardScaler) InverseTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.check(X); err != nil {
		return nil, err
	}
	out, err := s.inner.InverseTransform(X)
	if err != nil {
		return nil, fmt.Errorf("还原标准化: %w", err)
	}
	return mat.DenseCopyOf(out), nil
}

func (s *StandardScaler) check(X mat.Matrix) error {
	if s.inner == nil {
		return ErrNotFitted
	}
	if _, c := X.Dims(); c != len(s.Mean) {
		return fmt.Errorf("标准化: 期望%d列, 实际%d列: %w", len(s.Mean), c, ErrDimensionMismatch)
	}
	return nil
}

func checkXY(X mat.Matrix, y []float64) (int, int, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return r, c, ErrInsufficientData
	}
	if r != len(y) {
		return r, c, fmt.Errorf("X有%d行, y有%d个: %w", r, len(y), ErrDimensionMismatch)
	}
	return r, c, nil
}

// column 把y转成n×1矩阵
func column(y []float64) *mat.Dense {
	return mat.NewDense(len(y), 1, append([]float64(nil), y...))
}
