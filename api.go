package demlib

// 几何WKB，两套GDAL绑定之间以此传递
type GdalGeo = []byte

// 瓦片索引条目，一行对应一个源瓦片，运行期间不可变
type TileIndexEntry struct {
	Id        string  // 瓦片标识，取自索引字段，亦决定镶嵌次序
	URL       string  // 远端压缩包地址
	Footprint GdalGeo // 瓦片地理范围WKB
}

// 单瓦片落盘产物
type TileArtifact struct {
	Id   string
	Dem  string // 高程栅格路径
	Mask string // 有效性掩膜路径
}

// 单瓦片处理失败记录，批次不因此中断
type TileError struct {
	Id  string
	Err error
}

func (e TileError) Error() string {
	return e.Id + ": " + e.Err.Error()
}

// 整次运行的终态汇总
type RunSummary struct {
	Fetched   int
	Repaired  int
	Warped    int
	Failed    []TileError
	Mosaic    string   // 全分辨率成果路径
	Overviews []string // 各降采样成果路径
}
