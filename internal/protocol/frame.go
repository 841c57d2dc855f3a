package protocol

// Frame TCP传输的成帧请求
// 信封包装在 {"path": "/", "data": envelope} 里，由TCP协作方定义
type Frame struct {
	Path string      `json:"path"`
	Data interface{} `json:"data"`
}

// FramePath TCP帧的固定路径
const FramePath = "/"

// NewFrame 包装信封为TCP帧
func NewFrame(data interface{}) *Frame {
	return &Frame{Path: FramePath, Data: data}
}
