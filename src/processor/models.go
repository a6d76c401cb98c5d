package processor

import (
	"FlightDelayInsight/src/config"
	"FlightDelayInsight/src/model"
	"FlightDelayInsight/src/utils"
	"errors"
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/mat"
)

// ClassifierReport k近邻分类(预测是否延误)的结果
type ClassifierReport struct {
	Features []string
	K        int
	Train    int
	Test     int
	Accuracy float64
	BaseRate float64 // 测试集中延误的比例, 用于对比准确率
}

// RegressorReport 线性回归(预测到达延误分钟)的结果
type RegressorReport struct {
	Features     []string
	Target       string
	Train        int
	Test         int
	Coefficients map[string]float64
	Intercept    float64
	R2           float64
	RMSE         float64
}

// ClusterReport k-means结果, 质心已还原到原始尺度
type ClusterReport struct {
	Features   []string
	K          int
	Rows       int
	Centroids  [][]float64
	Sizes      []int
	Inertia    float64
	Iterations int
}

// ModelReport 三个模型的结果, 训练失败的模型为nil
type ModelReport struct {
	Classifier *ClassifierReport
	Regressor  *RegressorReport
	Clusters   *ClusterReport
}

// RunModels 在清洗后的航班表上分别训练三个模型, 每个模型各自抽样
// 某个模型失败不影响其余模型, 所有失败合并后返回
func RunModels(df dataframe.DataFrame, cfg config.ModelConfig, arrCol string) (*ModelReport, error) {
	report := &ModelReport{}
	var errs []error

	if clf, err := runClassifier(df, cfg); err != nil {
		errs = append(errs, fmt.Errorf("knn分类: %w", err))
	} else {
		report.Classifier = clf
	}

	if reg, err := runRegressor(df, cfg, arrCol); err != nil {
		errs = append(errs, fmt.Errorf("线性回归: %w", err))
	} else {
		report.Regressor = reg
	}

	if km, err := runClusters(df, cfg); err != nil {
		errs = append(errs, fmt.Errorf("kmeans聚类: %w", err))
	} else {
		report.Clusters = km
	}

	return report, errors.Join(errs...)
}

func runClassifier(df dataframe.DataFrame, cfg config.ModelConfig) (*ClassifierReport, error) {
	cols, rows, err := completeRows(df, append(append([]string(nil), cfg.ClassifierInput...), IsDelayedCol))
	if err != nil {
		return nil, err
	}
	src := model.NewSource(cfg.Seed)
	train, test, err := model.TrainTestSplit(model.Sample(rows, cfg.SampleSize, src), cfg.TestRatio, src)
	if err != nil {
		return nil, err
	}

	nf := len(cfg.ClassifierInput)
	var scaler model.StandardScaler
	if err := scaler.Fit(buildMatrix(cols[:nf], train)); err != nil {
		return nil, err
	}
	xTrain, err := scaler.Transform(buildMatrix(cols[:nf], train))
	if err != nil {
		return nil, err
	}
	xTest, err := scaler.Transform(buildMatrix(cols[:nf], test))
	if err != nil {
		return nil, err
	}
	yTrain := pick(cols[nf], train)
	yTest := pick(cols[nf], test)

	knn := model.NewKNNClassifier(cfg.Neighbors)
	if err := knn.Fit(xTrain, yTrain); err != nil {
		return nil, err
	}
	acc, err := knn.Score(xTest, yTest)
	if err != nil {
		return nil, err
	}

	delayed := 0
	for _, v := range yTest {
		if v > 0 {
			delayed++
		}
	}
	return &ClassifierReport{
		Features: append([]string(nil), cfg.ClassifierInput...),
		K:        cfg.Neighbors,
		Train:    len(train),
		Test:     len(test),
		Accuracy: acc,
		BaseRate: float64(delayed) / float64(len(yTest)),
	}, nil
}

func runRegressor(df dataframe.DataFrame, cfg config.ModelConfig, target string) (*RegressorReport, error) {
	cols, rows, err := completeRows(df, append(append([]string(nil), cfg.RegressorInput...), target))
	if err != nil {
		return nil, err
	}
	src := model.NewSource(cfg.Seed + 1)
	train, test, err := model.TrainTestSplit(model.Sample(rows, cfg.SampleSize, src), cfg.TestRatio, src)
	if err != nil {
		return nil, err
	}

	nf := len(cfg.RegressorInput)
	lr := model.NewLinearRegression()
	if err := lr.Fit(buildMatrix(cols[:nf], train), pick(cols[nf], train)); err != nil {
		return nil, err
	}
	yTest := pick(cols[nf], test)
	pred, err := lr.Predict(buildMatrix(cols[:nf], test))
	if err != nil {
		return nil, err
	}

	coef := make(map[string]float64, nf)
	for i, c := range lr.Coefficients() {
		coef[cfg.RegressorInput[i]] = c
	}
	return &RegressorReport{
		Features:     append([]string(nil), cfg.RegressorInput...),
		Target:       target,
		Train:        len(train),
		Test:         len(test),
		Coefficients: coef,
		Intercept:    lr.Intercept(),
		R2:           model.RSquared(yTest, pred),
		RMSE:         model.RMSE(yTest, pred),
	}, nil
}

func runClusters(df dataframe.DataFrame, cfg config.ModelConfig) (*ClusterReport, error) {
	cols, rows, err := completeRows(df, cfg.ClusterInput)
	if err != nil {
		return nil, err
	}
	sample := model.Sample(rows, cfg.SampleSize, model.NewSource(cfg.Seed+2))

	var scaler model.StandardScaler
	raw := buildMatrix(cols, sample)
	if err := scaler.Fit(raw); err != nil {
		return nil, err
	}
	x, err := scaler.Transform(raw)
	if err != nil {
		return nil, err
	}

	km := model.NewKMeans(cfg.Clusters, cfg.Seed+2)
	km.MaxIter = cfg.MaxIter
	if err := km.Fit(x); err != nil {
		return nil, err
	}
	centroids, err := scaler.InverseTransform(km.Centroids())
	if err != nil {
		return nil, err
	}

	k, _ := centroids.Dims()
	out := make([][]float64, k)
	for i := range out {
		out[i] = mat.Row(nil, i, centroids)
	}
	return &ClusterReport{
		Features:   append([]string(nil), cfg.ClusterInput...),
		K:          cfg.Clusters,
		Rows:       len(sample),
		Centroids:  out,
		Sizes:      km.Sizes(),
		Inertia:    km.Inertia(),
		Iterations: km.Iterations(),
	}, nil
}

// completeRows 读取各列为float64, 返回所有列都不是NaN的行号
// bool列读为0/1
func completeRows(df dataframe.DataFrame, names []string) ([][]float64, []int, error) {
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("未配置特征列")
	}
	if missing := utils.MissingColumns(df, names...); len(missing) > 0 {
		return nil, nil, missingColumnError("航班表", missing)
	}

	cols := make([][]float64, len(names))
	for i, n := range names {
		cols[i] = utils.FloatColumn(df, n)
	}

	var rows []int
	for r := 0; r < df.Nrow(); r++ {
		ok := true
		for _, c := range cols {
			if math.IsNaN(c[r]) || math.IsInf(c[r], 0) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("特征%v没有完整的行: %w", names, ErrEmptyTable)
	}
	return cols, rows, nil
}

func buildMatrix(cols [][]float64, rows []int) *mat.Dense {
	m := mat.NewDense(len(rows), len(cols), nil)
	for i, r := range rows {
		for j, c := range cols {
			m.Set(i, j, c[r])
		}
	}
	return m
}

func pick(col []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = col[r]
	}
	return out
}
