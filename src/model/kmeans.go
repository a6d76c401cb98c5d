package model

import (
	"fmt"

	"github.com/ezoic/scigo/sklearn/cluster"
	"gonum.org/v1/gonum/mat"
)

// KMeans k-means++ 初始化的 mini-batch k-means, 固定种子时结果可复现
type KMeans struct {
	K         int
	MaxIter   int
	BatchSize int
	Tol       float64
	Seed      int64

	inner     *cluster.MiniBatchKMeans
	centroids *mat.Dense
	labels    []int
}

func NewKMeans(k int, seed int64) *KMeans {
	return &KMeans{K: k, MaxIter: 300, BatchSize: 1024, Tol: 1e-4, Seed: seed}
}

func (m *KMeans) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if m.K <= 0 {
		return fmt.Errorf("kmeans: k=%d 无效", m.K)
	}
	if r < m.K || c == 0 {
		return fmt.Errorf("kmeans: 样本%d条少于k=%d: %w", r, m.K, ErrInsufficientData)
	}
	maxIter := m.MaxIter
	if maxIter <= 0 {
		maxIter = 300
	}
	batch := m.BatchSize
	if batch <= 0 {
		batch = 1024
	}
	// 负种子在scigo里表示按时间随机
	seed := m.Seed
	if seed < 0 {
		seed = -seed
	}

	inner := cluster.NewMiniBatchKMeans(
		cluster.WithKMeansNClusters(m.K),
		cluster.WithKMeansInit("k-means++"),
		cluster.WithKMeansMaxIter(maxIter),
		cluster.WithKMeansBatchSize(batch),
		cluster.WithKMeansTol(m.Tol),
		cluster.WithKMeansRandomState(seed),
	)
	if err := inner.Fit(X, nil); err != nil {
		return fmt.Errorf("kmeans: %w", err)
	}

	centers := inner.ClusterCenters()
	m.centroids = mat.NewDense(len(centers), c, nil)
	for i, row := range centers {
		m.centroids.SetRow(i, row)
	}
	m.labels = inner.Labels()
	m.inner = inner
	return nil
}

// Predict 返回每个样本所属簇的编号
func (m *KMeans) Predict(X mat.Matrix) ([]int, error) {
	if m.inner == nil {
		return nil, ErrNotFitted
	}
	_, c := X.Dims()
	if _, cc := m.centroids.Dims(); c != cc {
		return nil, fmt.Errorf("kmeans: 期望%d列, 实际%d列: %w", cc, c, ErrDimensionMismatch)
	}
	pred, err := m.inner.Predict(X)
	if err != nil {
		return nil, fmt.Errorf("kmeans: %w", err)
	}
	r, _ := pred.Dims()
	labels := make([]int, r)
	for i := range labels {
		labels[i] = int(pred.At(i, 0))
	}
	return labels, nil
}

func (m *KMeans) Centroids() *mat.Dense {
	if m.centroids == nil {
		return nil
	}
	return mat.DenseCopyOf(m.centroids)
}

func (m *KMeans) Labels() []int {
	return append([]int(nil), m.labels...)
}

// Sizes 每个簇的样本数
func (m *KMeans) Sizes() []int {
	sizes := make([]int, m.K)
	for _, l := range m.labels {
		sizes[l]++
	}
	return sizes
}

func (m *KMeans) Inertia() float64 {
	if m.inner == nil {
		return 0
	}
	return m.inner.Inertia()
}

// Iterations 最优一次初始化实际跑的轮数
func (m *KMeans) Iterations() int {
	if m.inner == nil {
		return 0
	}
	return m.inner.NIterations() + 1
}
