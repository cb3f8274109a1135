package demlib

const (
	FILE_EXT_TIF  = ".tif"
	FILE_EXT_VRT  = ".vrt"
	FILE_EXT_SHP  = ".shp"
	FILE_EXT_CPG  = ".cpg"
	FILE_EXT_ZIP  = ".zip"
	FILE_EXT_PART = ".part"

	SHAPE_ENCODING  = "UTF-8"
	UTF8_ENC        = "UTF8"
	SHP_DRIVER_NAME = "ESRI Shapefile"

	GEOGRAPHIC_SRID = 4326

	RESAMPLE_BILINEAR = "bilinear"

	DEFAULT_NODATA        = -9999.0
	DEFAULT_CONCURRENCY   = 4
	DEFAULT_WINDOW_HEIGHT = 256
	DEFAULT_FETCH_RETRIES = 3

	// 分块缓冲上限，超出则要求调小WindowHeight
	MAX_WINDOW_BYTES = 1 << 30

	DEM_SUFFIX  = "_DEM.tif"
	MASK_SUFFIX = "_MSK.tif"

	MOSAIC_NAME = "mosaic"
)

// 所有输出GTiff的创建参数，分块+压缩+BIGTIFF，满足超4G输出
var (
	tiffCreationOpts = []string{"TILED=YES", "COMPRESS=DEFLATE", "BIGTIFF=YES"}
	tiffOpts         = []string{
		"-co", tiffCreationOpts[0],
		"-co", tiffCreationOpts[1],
		"-co", tiffCreationOpts[2],
	}
)

// 镶嵌重叠处理策略
type MergePolicy int

const (
	// 按瓦片id字典序，先出现的有效值优先
	MergeFirstValid MergePolicy = iota
	// 后出现的瓦片覆盖先出现的
	MergeLastWins
)

// 单次任务的全量配置，各阶段只读共享，不得在运行中修改
type RunConfig struct {
	TargetSrid   int        // 目标投影坐标系EPSG
	Resolution   float64    // 目标分辨率（目标坐标系单位）
	Extent       [4]float64 // 输出范围 [xmin, ymin, xmax, ymax]
	Nodata       float64    // 无效值标记
	ScaleFactors []float64  // 降采样比例，均从全分辨率结果派生
	MergePolicy  MergePolicy

	StagingDir string // 瓦片下载与中间产物目录
	OutputDir  string // 最终产物目录

	DemSuffix  string // 压缩包内高程栅格成员后缀
	MaskSuffix string // 压缩包内有效性掩膜成员后缀

	Concurrency  int // 瓦片下载并发数
	FetchRetries int // 单瓦片下载重试次数
	WindowHeight int // 分块读写的行数
}

func (c *RunConfig) setDefaults() {
	if c.Nodata == 0 {
		c.Nodata = DEFAULT_NODATA
	}
	if c.DemSuffix == "" {
		c.DemSuffix = DEM_SUFFIX
	}
	if c.MaskSuffix == "" {
		c.MaskSuffix = MASK_SUFFIX
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DEFAULT_CONCURRENCY
	}
	if c.FetchRetries <= 0 {
		c.FetchRetries = DEFAULT_FETCH_RETRIES
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = DEFAULT_WINDOW_HEIGHT
	}
}

func (c *RunConfig) validate() (err error) {
	if c.TargetSrid <= 0 || c.Resolution <= 0 {
		err = ErrBadConfig
		return
	}
	if c.Extent[2] <= c.Extent[0] || c.Extent[3] <= c.Extent[1] {
		err = ErrBadConfig
		return
	}
	for _, f := range c.ScaleFactors {
		if f <= 0 || f >= 1 {
			err = ErrBadConfig
			return
		}
	}
	return
}

// 输出栅格像素尺寸，由范围和分辨率确定
func (c *RunConfig) gridSize() (width, height int) {
	width = int((c.Extent[2] - c.Extent[0]) / c.Resolution)
	height = int((c.Extent[3] - c.Extent[1]) / c.Resolution)
	return
}
