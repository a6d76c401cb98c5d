package model

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSampleWithoutReplacement(t *testing.T) {
	idx := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	got := Sample(idx, 4, NewSource(1))
	require.Len(t, got, 4)

	seen := map[int]bool{}
	for _, v := range got {
		assert.False(t, seen[v], "duplicate %d", v)
		seen[v] = true
		assert.Contains(t, idx, v)
	}

	all := Sample(idx, 100, NewSource(1))
	sort.Ints(all)
	assert.Equal(t, idx, all)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, idx, "input must not be modified")

	assert.Nil(t, Sample(nil, 3, NewSource(1)))
}

func TestSampleMapsPositionsToIndices(t *testing.T) {
	idx := []int{100, 200, 300, 400, 500}
	got := Sample(idx, 3, NewSource(9))
	require.Len(t, got, 3)
	for _, v := range got {
		assert.Contains(t, idx, v)
	}
}

func TestSampleIsReproducible(t *testing.T) {
	idx := make([]int, 50)
	for i := range idx {
		idx[i] = i * 2
	}
	a := Sample(idx, 10, NewSource(5))
	b := Sample(idx, 10, NewSource(5))
	assert.Equal(t, a, b)

	c := Sample(idx, 10, NewSource(6))
	assert.NotEqual(t, a, c)
}

func TestTrainTestSplit(t *testing.T) {
	idx := make([]int, 100)
	for i := range idx {
		idx[i] = i
	}
	train, test, err := TrainTestSplit(idx, 0.2, NewSource(7))
	require.NoError(t, err)
	assert.Len(t, test, 20)
	assert.Len(t, train, 80)

	_, _, err = TrainTestSplit([]int{1}, 0.2, NewSource(7))
	assert.ErrorIs(t, err, ErrInsufficientData)

	train, test, err = TrainTestSplit([]int{1, 2}, 0.01, NewSource(7))
	require.NoError(t, err)
	assert.Len(t, train, 1)
	assert.Len(t, test, 1)
}

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
		4, 5,
	})
	var s StandardScaler
	require.NoError(t, s.Fit(X))
	assert.InDelta(t, 2.5, s.Mean[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[1], "constant column keeps unit scale")

	out, err := s.Transform(X)
	require.NoError(t, err)
	assert.InDelta(t, 0, out.At(0, 1), 1e-12)
	assert.InDelta(t, -1.3416407865, out.At(0, 0), 1e-9)

	back, err := s.InverseTransform(out)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(X, back, 1e-9))

	_, err = s.Transform(mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	var unfitted StandardScaler
	_, err = unfitted.Transform(X)
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestKNNClassifierSeparableData(t *testing.T) {
	X := mat.NewDense(8, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
		10, 10,
		10, 11,
		11, 10,
		11, 11,
	})
	y := []float64{0, 0, 0, 0, 1, 1, 1, 1}

	knn := NewKNNClassifier(3)
	require.NoError(t, knn.Fit(X, y))

	pred, err := knn.Predict(mat.NewDense(2, 2, []float64{0.5, 0.5, 10.5, 10.2}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, pred)

	acc, err := knn.Score(X, y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc)
}

func TestKNNTieGoesToNearest(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 10})
	y := []float64{0, 1}

	knn := NewKNNClassifier(2)
	require.NoError(t, knn.Fit(X, y))

	pred, err := knn.Predict(mat.NewDense(2, 1, []float64{2, 9}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, pred)
}

func TestKNNErrors(t *testing.T) {
	knn := NewKNNClassifier(3)
	_, err := knn.Predict(mat.NewDense(1, 1, nil))
	assert.ErrorIs(t, err, ErrNotFitted)

	err = knn.Fit(mat.NewDense(2, 1, []float64{1, 2}), []float64{0, 1})
	assert.ErrorIs(t, err, ErrInsufficientData)

	err = knn.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), []float64{0, 1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestLinearRegressionRecoversCoefficients(t *testing.T) {
	// y = 3 + 2*x1 - 0.5*x2
	X := mat.NewDense(6, 2, []float64{
		1, 2,
		2, 1,
		3, 4,
		4, 3,
		5, 6,
		6, 5,
	})
	y := make([]float64, 6)
	for i := range y {
		y[i] = 3 + 2*X.At(i, 0) - 0.5*X.At(i, 1)
	}

	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(X, y))
	assert.InDelta(t, 3, lr.Intercept(), 1e-9)
	coef := lr.Coefficients()
	assert.InDelta(t, 2, coef[0], 1e-9)
	assert.InDelta(t, -0.5, coef[1], 1e-9)

	score, err := lr.Score(X, y)
	require.NoError(t, err)
	assert.InDelta(t, 1, score, 1e-9)

	pred, err := lr.Predict(mat.NewDense(1, 2, []float64{10, 0}))
	require.NoError(t, err)
	assert.InDelta(t, 23, pred[0], 1e-9)
}

func TestLinearRegressionErrors(t *testing.T) {
	lr := NewLinearRegression()
	_, err := lr.Predict(mat.NewDense(1, 1, nil))
	assert.ErrorIs(t, err, ErrNotFitted)

	err = lr.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4}), []float64{1, 2})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRSquaredAndRMSE(t *testing.T) {
	assert.InDelta(t, 1, RSquared([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-12)
	assert.InDelta(t, 0, RSquared([]float64{1, 2, 3}, []float64{2, 2, 2}), 1e-12)
	assert.True(t, math.IsNaN(RSquared([]float64{2, 2}, []float64{1, 3})))
	assert.InDelta(t, 1, RMSE([]float64{1, 2}, []float64{2, 3}), 1e-12)
	assert.True(t, math.IsNaN(RMSE([]float64{1, 2}, []float64{1})))
	assert.True(t, math.IsNaN(RSquared(nil, nil)))
}

func TestAccuracy(t *testing.T) {
	assert.InDelta(t, 0.75, Accuracy([]float64{0, 1, 1, 0}, []float64{0, 1, 0, 0}), 1e-12)
	assert.Equal(t, 0.0, Accuracy(nil, nil))
	assert.Equal(t, 0.0, Accuracy([]float64{1}, []float64{1, 0}))
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	centers := [][2]float64{{0, 0}, {100, 0}, {0, 100}, {100, 100}}
	rng := rand.New(rand.NewPCG(3, 3))
	var data []float64
	for _, c := range centers {
		for i := 0; i < 25; i++ {
			data = append(data, c[0]+rng.Float64(), c[1]+rng.Float64())
		}
	}
	X := mat.NewDense(100, 2, data)

	km := NewKMeans(4, 42)
	require.NoError(t, km.Fit(X))

	assert.ElementsMatch(t, []int{25, 25, 25, 25}, km.Sizes())
	labels := km.Labels()
	for blob := 0; blob < 4; blob++ {
		first := labels[blob*25]
		for i := blob * 25; i < (blob+1)*25; i++ {
			assert.Equal(t, first, labels[i])
		}
	}
	assert.Less(t, km.Inertia(), 100.0)

	pred, err := km.Predict(mat.NewDense(1, 2, []float64{100.5, 100.5}))
	require.NoError(t, err)
	assert.Equal(t, labels[75], pred[0])

	r, c := km.Centroids().Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 2, c)
	assert.Positive(t, km.Iterations())
}

func TestKMeansIsReproducible(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 11))
	data := make([]float64, 120)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	X := mat.NewDense(60, 2, data)

	a := NewKMeans(4, 7)
	require.NoError(t, a.Fit(X))
	b := NewKMeans(4, 7)
	require.NoError(t, b.Fit(X))

	assert.Equal(t, a.Labels(), b.Labels())
	assert.True(t, mat.Equal(a.Centroids(), b.Centroids()))
	assert.Equal(t, a.Inertia(), b.Inertia())
}

func TestKMeansErrors(t *testing.T) {
	km := NewKMeans(4, 1)
	_, err := km.Predict(mat.NewDense(1, 2, nil))
	assert.ErrorIs(t, err, ErrNotFitted)

	err = km.Fit(mat.NewDense(3, 2, nil))
	assert.ErrorIs(t, err, ErrInsufficientData)
}
