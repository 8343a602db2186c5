package decorator

import "errors"

// 预定义错误.
var (
	// ErrInstantiate 装饰器实例化或注入失败.
	ErrInstantiate = errors.New("decorator: 装饰器实例化失败")
	// ErrNilConstructor 注册项缺少构造函数.
	ErrNilConstructor = errors.New("decorator: 构造函数不能为空")
)
