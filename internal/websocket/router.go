// internal/websocket/router.go
package websocket

import (
	"encoding/json"
	"fmt"
	"reflect"

	"autopatch/internal/events"
)

var (
	sinkType  = reflect.TypeOf((*events.Sink)(nil)).Elem()
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// Router 将 RPC 方法映射到 App 方法
type Router struct {
	app     interface{}
	methods map[string]reflect.Method
}

// NewRouter 创建新的路由器
func NewRouter(app interface{}) *Router {
	r := &Router{
		app:     app,
		methods: make(map[string]reflect.Method),
	}

	// 通过反射获取所有公开方法
	appType := reflect.TypeOf(app)
	for i := 0; i < appType.NumMethod(); i++ {
		method := appType.Method(i)
		if method.IsExported() {
			r.methods[method.Name] = method
		}
	}

	return r
}

// Call 调用指定的 RPC 方法。方法签名里的 events.Sink 参数不占用
// params，由调用方注入，事件直接回流给发起请求的客户端。
func (r *Router) Call(methodName string, params []json.RawMessage, sink events.Sink) (interface{}, error) {
	method, ok := r.methods[methodName]
	if !ok {
		return nil, fmt.Errorf("method not found: %s", methodName)
	}

	methodType := method.Type
	args := []reflect.Value{reflect.ValueOf(r.app)}
	paramIdx := 0

	for i := 1; i < methodType.NumIn(); i++ {
		in := methodType.In(i)

		if in == sinkType {
			sv := reflect.New(sinkType).Elem()
			if sink != nil {
				sv.Set(reflect.ValueOf(sink))
			}
			args = append(args, sv)
			continue
		}

		if paramIdx >= len(params) {
			return nil, fmt.Errorf("method %s: missing param %d (%s)", methodName, paramIdx, in)
		}

		// 每个参数按方法签名的具体类型解码，而不是通用 interface{}
		pv := reflect.New(in)
		if err := json.Unmarshal(params[paramIdx], pv.Interface()); err != nil {
			return nil, fmt.Errorf("method %s: param %d: %w", methodName, paramIdx, err)
		}
		args = append(args, pv.Elem())
		paramIdx++
	}

	if paramIdx != len(params) {
		return nil, fmt.Errorf("method %s expects %d params, got %d", methodName, paramIdx, len(params))
	}

	results := method.Func.Call(args)

	return processResults(results)
}

// processResults 处理方法返回值
func processResults(results []reflect.Value) (interface{}, error) {
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		if results[0].Type().Implements(errorType) {
			if !results[0].IsNil() {
				return nil, results[0].Interface().(error)
			}
			return nil, nil
		}
		return results[0].Interface(), nil
	case 2:
		// 约定最后一个返回值是 error
		if !results[1].IsNil() {
			return nil, results[1].Interface().(error)
		}
		return results[0].Interface(), nil
	default:
		var result []interface{}
		for i := 0; i < len(results)-1; i++ {
			result = append(result, results[i].Interface())
		}
		last := results[len(results)-1]
		if last.Type().Implements(errorType) && !last.IsNil() {
			return nil, last.Interface().(error)
		}
		return result, nil
	}
}
