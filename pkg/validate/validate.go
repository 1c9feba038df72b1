package validate

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	phonePattern     = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	hhmmPattern      = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
	classCodePattern = regexp.MustCompile(`^[0-9]{4}$`)
	datePattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// IsPhone 手机号：可选 + 前缀，7-15 位数字
func IsPhone(s string) bool { return phonePattern.MatchString(s) }

// IsHHMM 24 小时制 HH:MM
func IsHHMM(s string) bool { return hhmmPattern.MatchString(s) }

// IsClassCode 4 位数字班级码
func IsClassCode(s string) bool { return classCodePattern.MatchString(s) }

// Register 在 gin 默认校验器上注册自定义规则
func Register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return RegisterOn(v)
}

// RegisterOn 在指定校验器上注册自定义规则
func RegisterOn(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"phone":     func(fl validator.FieldLevel) bool { return IsPhone(fl.Field().String()) },
		"hhmm":      func(fl validator.FieldLevel) bool { return IsHHMM(fl.Field().String()) },
		"classcode": func(fl validator.FieldLevel) bool { return IsClassCode(fl.Field().String()) },
		"ymd":       func(fl validator.FieldLevel) bool { return datePattern.MatchString(fl.Field().String()) },
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}
