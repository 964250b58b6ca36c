package handler

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/lqCintern/farm-management-sub004/pkg/errors"
	"github.com/lqCintern/farm-management-sub004/pkg/response"
)

// RegisterValidators 在 gin 的校验引擎上注册自定义规则，启动时调用一次
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("binding 校验引擎不是 validator/v10")
	}
	// 错误字段名取 json tag
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})
	return v.RegisterValidation("hhmm", validateHHMM)
}

// validateHHMM 24 小时制 HH:MM
func validateHHMM(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}

// bindFailed 把绑定错误转换为逐字段的校验错误列表并写入 400
func bindFailed(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		response.BadRequest(c, 10000, "参数校验失败")
		return
	}

	list := make(pkgerrors.List, 0, len(verrs))
	for _, fe := range verrs {
		list = append(list, pkgerrors.Validation(10000, ruleMessage(fe)).WithField(fieldPath(fe)))
	}
	response.BizError(c, list)
}

// fieldPath 取命名空间最后一段：BatchAssignRequest.dates[1] → dates[1]
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.LastIndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "不能为空"
	case "hhmm":
		return "时间格式应为 HH:MM"
	case "datetime":
		return "日期格式应为 YYYY-MM-DD"
	case "oneof":
		return "取值应为 " + fe.Param() + " 之一"
	case "gt":
		return "必须大于 " + fe.Param()
	case "min", "gte":
		return "不能小于 " + fe.Param()
	case "max", "lt", "lte":
		return "不能大于 " + fe.Param()
	}
	return "取值无效"
}
