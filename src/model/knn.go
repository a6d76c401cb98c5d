package model

import (
	"fmt"
	"sort"

	"github.com/ezoic/scigo/metrics"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// KNNClassifier k近邻分类器, 欧氏距离, 多数投票
// 票数相同时取距离最近的那个邻居所属的类别
type KNNClassifier struct {
	K int

	x      *mat.Dense
	labels []float64
}

func NewKNNClassifier(k int) *KNNClassifier {
	return &KNNClassifier{K: k}
}

func (m *KNNClassifier) Fit(X mat.Matrix, y []float64) error {
	r, _, err := checkXY(X, y)
	if err != nil {
		return fmt.Errorf("knn: %w", err)
	}
	if m.K <= 0 {
		return fmt.Errorf("knn: k=%d 无效", m.K)
	}
	if r < m.K {
		return fmt.Errorf("knn: 样本%d条少于k=%d: %w", r, m.K, ErrInsufficientData)
	}
	m.x = mat.DenseCopyOf(X)
	m.labels = append([]float64(nil), y...)
	return nil
}

type neighbor struct {
	idx  int
	dist float64
}

func (m *KNNClassifier) Predict(X mat.Matrix) ([]float64, error) {
	if m.x == nil {
		return nil, ErrNotFitted
	}
	r, c := X.Dims()
	_, fc := m.x.Dims()
	if c != fc {
		return nil, fmt.Errorf("knn: 期望%d列, 实际%d列: %w", fc, c, ErrDimensionMismatch)
	}

	nTrain, _ := m.x.Dims()
	out := make([]float64, r)
	query := make([]float64, c)
	neighbors := make([]neighbor, nTrain)
	for i := 0; i < r; i++ {
		mat.Row(query, i, X)
		for j := 0; j < nTrain; j++ {
			neighbors[j] = neighbor{idx: j, dist: floats.Distance(query, m.x.RawRowView(j), 2)}
		}
		sort.SliceStable(neighbors, func(a, b int) bool {
			return neighbors[a].dist < neighbors[b].dist
		})
		out[i] = m.vote(neighbors[:m.K])
	}
	return out, nil
}

func (m *KNNClassifier) vote(nearest []neighbor) float64 {
	counts := make(map[float64]int)
	best := 0
	for _, n := range nearest {
		counts[m.labels[n.idx]]++
		if counts[m.labels[n.idx]] > best {
			best = counts[m.labels[n.idx]]
		}
	}
	// nearest按距离排序, 第一个达到最高票数的类别即为结果
	for _, n := range nearest {
		if counts[m.labels[n.idx]] == best {
			return m.labels[n.idx]
		}
	}
	return m.labels[nearest[0].idx]
}

// Score 返回准确率
func (m *KNNClassifier) Score(X mat.Matrix, y []float64) (float64, error) {
	if _, _, err := checkXY(X, y); err != nil {
		return 0, fmt.Errorf("knn: %w", err)
	}
	pred, err := m.Predict(X)
	if err != nil {
		return 0, err
	}
	return Accuracy(y, pred), nil
}

// Accuracy 预测正确的比例, 长度不符或为空时返回0
func Accuracy(truth, pred []float64) float64 {
	if len(truth) == 0 || len(truth) != len(pred) {
		return 0
	}
	acc, err := metrics.Accuracy(mat.NewVecDense(len(truth), truth), mat.NewVecDense(len(pred), pred))
	if err != nil {
		return 0
	}
	return acc
}
