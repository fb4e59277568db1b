package a2a

// 任务域 JSON-RPC 错误码。
const (
	RPCTaskNotFound                 = -32001
	RPCTaskNotCancelable            = -32002
	RPCPushNotificationNotSupported = -32003
	RPCUnsupportedOperation         = -32004
	RPCContentTypeNotSupported      = -32005
	RPCInvalidAgentResponse         = -32006
	RPCExtensionSupportRequired     = -32008
)
