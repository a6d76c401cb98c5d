package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// 环境变量名，用于覆盖配置文件中的密钥
const (
	EnvEmailPassword = "FDI_EMAIL_PASSWORD"
	EnvSMTPPassword  = "FDI_SMTP_PASSWORD"
	EnvPushSecret    = "FDI_PUSH_SECRET"
)

// Config 结构体定义了应用程序的运行配置
type Config struct {
	Ingest struct {
		FlightsSource  string   `json:"flights_source"`  // 航班数据地址(http/https或本地路径, 支持.zip/.csv/.xlsx)
		AirportsSource string   `json:"airports_source"` // 机场参考表地址
		AirlinesSource string   `json:"airlines_source"` // 航司参考表地址
		SheetName      string   `json:"sheet_name"`      // xlsx输入时的工作表名
		Timeout        Duration `json:"timeout"`         // 单次下载超时
	} `json:"ingest"`

	Email struct {
		Enabled       bool     `json:"enabled"`        // 是否从邮箱读取航班数据
		Server        string   `json:"server"`         // 邮件服务器地址
		Username      string   `json:"username"`       // 邮箱用户名
		Password      string   `json:"password"`       // 邮箱密码
		TargetSubject string   `json:"target_subject"` // 需要匹配的邮件主题
		CheckInterval Duration `json:"check_interval"` // 检查新邮件的间隔时间
	} `json:"email"`

	SendEmail struct {
		Enabled  bool     `json:"enabled"`
		Server   string   `json:"server"`   // SMTP服务器地址
		Username string   `json:"username"` // 发件人
		Password string   `json:"password"` // 密码/授权码
		To       []string `json:"to"`       // 收件人
		Subject  string   `json:"subject"`  // 邮件主题
	} `json:"send_email"`

	Push struct {
		Enabled bool   `json:"enabled"`
		Webhook string `json:"webhook"` // 钉钉机器人webhook
		Secret  string `json:"secret"`  // 加签密钥, 为空时不签名
	} `json:"push"`

	Report struct {
		XLSXPath string `json:"xlsx_path"` // 为空时不导出
		TopN     int    `json:"top_n"`     // 机场统计保留条数
	} `json:"report"`

	Schedule struct {
		Interval Duration `json:"interval"` // 定时分析间隔
		LogAddr  string   `json:"log_addr"` // 实时日志http地址, 为空时不启动
	} `json:"schedule"`

	DataDir    string `json:"data_dir"` // 本地数据目录(watch模式监控)
	LogName    string `json:"log_name"`
	LogMaxSize string `json:"log_max_size"`
}

// ModelConfig 模型超参数
type ModelConfig struct {
	SampleSize      int      `json:"sample_size"`
	TestRatio       float64  `json:"test_ratio"`
	Seed            int64    `json:"seed"`
	Neighbors       int      `json:"neighbors"`
	Clusters        int      `json:"clusters"`
	MaxIter         int      `json:"max_iter"`
	ClassifierInput []string `json:"classifier_features"`
	RegressorInput  []string `json:"regressor_features"`
	ClusterInput    []string `json:"cluster_features"`
}

// DataConfig 数据相关的配置: 列名映射、需要删除的列、参考表结构、模型参数
type DataConfig struct {
	FlightData     map[string]string `json:"flightData"`
	DropColumns    []string          `json:"dropColumns"`
	AirportColumns []string          `json:"airportColumns"`
	AirportKeep    []string          `json:"airportKeep"`
	AirlineColumns []string          `json:"airlineColumns"`
	AirlineKeep    []string          `json:"airlineKeep"`
	Country        string            `json:"country"`
	DistanceBands  []float64         `json:"distanceBands"`
	Correlations   []string          `json:"correlations"`
	Model          ModelConfig       `json:"model"`
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
	mu                 sync.RWMutex
)

// LoadConfig 只加载一次配置, 之后返回同一实例
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	var err error
	once.Do(func() {
		instance, dataConfigInstance, err = Load(jsonFolder, jsonFile, dataJsonFile)
	})
	if err == nil && (instance == nil || dataConfigInstance == nil) {
		err = fmt.Errorf("配置未加载成功")
	}
	return instance, dataConfigInstance, err
}

// Load 读取并解析两个配置文件, 不经过单例缓存
func Load(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	dataConfigData, err := readFile(dataConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	// .env 不存在时忽略
	_ = godotenv.Load(filepath.Join(jsonFolder, ".env"))
	cfg.applyEnv()
	cfg.applyDefaults()
	dcfg.applyDefaults()

	return cfg, dcfg, nil
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		errChan <- fmt.Errorf("解析Config失败: %w", err)
		return
	}
	resultChan <- &cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	var dcfg DataConfig
	if err := json.Unmarshal(data, &dcfg); err != nil {
		errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
		return
	}
	resultChan <- &dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg    *Config
		dcfg   *DataConfig
		errors []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return nil, nil, combineErrors(errors)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}

	msg := "配置加载遇到多个错误:"
	for _, err := range errs {
		msg = fmt.Sprintf("%s\n- %v", msg, err)
	}
	return fmt.Errorf("%s", msg)
}

// applyEnv 用环境变量覆盖密钥
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvEmailPassword); v != "" {
		c.Email.Password = v
	}
	if v := os.Getenv(EnvSMTPPassword); v != "" {
		c.SendEmail.Password = v
	}
	if v := os.Getenv(EnvPushSecret); v != "" {
		c.Push.Secret = v
	}
}

func (c *Config) applyDefaults() {
	if c.Ingest.Timeout <= 0 {
		c.Ingest.Timeout = Duration(2 * time.Minute)
	}
	if c.Ingest.SheetName == "" {
		c.Ingest.SheetName = "Sheet1"
	}
	if c.Email.CheckInterval <= 0 {
		c.Email.CheckInterval = Duration(5 * time.Minute)
	}
	if c.Schedule.Interval <= 0 {
		c.Schedule.Interval = Duration(time.Hour)
	}
	if c.Report.TopN <= 0 {
		c.Report.TopN = 20
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.LogName == "" {
		c.LogName = "app.log"
	}
	if c.LogMaxSize == "" {
		c.LogMaxSize = "10 * 1024 * 1024"
	}
}

func (dc *DataConfig) applyDefaults() {
	if dc.FlightData == nil {
		dc.FlightData = make(map[string]string)
	}
	for k, v := range defaultFlightData {
		if _, ok := dc.FlightData[k]; !ok {
			dc.FlightData[k] = v
		}
	}
	if dc.DropColumns == nil {
		dc.DropColumns = append([]string(nil), defaultDropColumns...)
	}
	if len(dc.AirportColumns) == 0 {
		dc.AirportColumns = append([]string(nil), defaultAirportColumns...)
	}
	if len(dc.AirportKeep) == 0 {
		dc.AirportKeep = []string{"IATA", "Name", "City", "Country", "Latitude", "Longitude"}
	}
	if len(dc.AirlineColumns) == 0 {
		dc.AirlineColumns = append([]string(nil), defaultAirlineColumns...)
	}
	if len(dc.AirlineKeep) == 0 {
		dc.AirlineKeep = []string{"IATA", "Name", "Country"}
	}
	if dc.Country == "" {
		dc.Country = "United States"
	}
	if len(dc.DistanceBands) == 0 {
		dc.DistanceBands = []float64{0, 250, 500, 1000, 1500, 2000}
	}
	if len(dc.Correlations) == 0 {
		dc.Correlations = []string{"DepDelay", "Distance"}
	}

	m := &dc.Model
	if m.SampleSize <= 0 {
		m.SampleSize = 10000
	}
	if m.TestRatio <= 0 || m.TestRatio >= 1 {
		m.TestRatio = 0.2
	}
	if m.Seed == 0 {
		m.Seed = 42
	}
	if m.Neighbors <= 0 {
		m.Neighbors = 3
	}
	if m.Clusters <= 0 {
		m.Clusters = 4
	}
	if m.MaxIter <= 0 {
		m.MaxIter = 300
	}
	if len(m.ClassifierInput) == 0 {
		m.ClassifierInput = []string{"DepDelay", "Distance"}
	}
	if len(m.RegressorInput) == 0 {
		m.RegressorInput = []string{"DepDelay", "Distance"}
	}
	if len(m.ClusterInput) == 0 {
		m.ClusterInput = []string{"DepDelay", "ArrDelay"}
	}
}

var defaultFlightData = map[string]string{
	"carrier":  "UniqueCarrier",
	"origin":   "Origin",
	"dest":     "Dest",
	"month":    "Month",
	"distance": "Distance",
	"depDelay": "DepDelay",
	"arrDelay": "ArrDelay",
}

var defaultDropColumns = []string{
	"Unnamed: 0", "Year", "FlightNum", "TailNum", "TaxiIn", "TaxiOut",
	"Cancelled", "CancellationCode", "Diverted",
	"CarrierDelay", "WeatherDelay", "NASDelay", "SecurityDelay", "LateAircraftDelay",
}

// OpenFlights airports.dat 列顺序
var defaultAirportColumns = []string{
	"AirportID", "Name", "City", "Country", "IATA", "ICAO", "Latitude", "Longitude",
	"Altitude", "Timezone", "DST", "TzDatabase", "Type", "Source",
}

// OpenFlights airlines.dat 列顺序
var defaultAirlineColumns = []string{
	"AirlineID", "Name", "Alias", "IATA", "ICAO", "Callsign", "Country", "Active",
}

// Default 返回填充了默认值的数据配置
func Default() *DataConfig {
	dc := &DataConfig{}
	dc.applyDefaults()
	return dc
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
// 用于从JSON字符串解析Duration
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (dc *DataConfig) GetFlightData(colName string) string {
	mu.RLock()
	defer mu.RUnlock()
	return dc.FlightData[colName]
}

func (dc *DataConfig) SetFlightData(colName, value string) {
	mu.Lock()
	defer mu.Unlock()
	dc.FlightData[colName] = value
}
