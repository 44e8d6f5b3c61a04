package handler

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/gofiber/fiber/v2"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	notBlankTag = "notblank"
)

func init() {
	validate = validator.New()

	// 영어 오류 메시지 등록
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// 오류에 구조체 필드명 대신 JSON 태그 이름 사용
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		if str, ok := fl.Field().Interface().(string); ok {
			return strings.TrimSpace(str) != ""
		}
		return false
	})
	_ = validate.RegisterTranslation(notBlankTag, translator,
		func(ut.Translator) error { return nil },
		func(ut.Translator, validator.FieldError) string { return "this field cannot be blank" },
	)
}

// fieldErrors 검증 오류를 {필드: 메시지} 로 변환
func fieldErrors(err error) map[string]string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fe.Field()] = fe.Translate(translator)
	}
	return fields
}

// parseBody JSON 본문 파싱 + 검증, 실패하면 400 응답을 이미 보낸 상태로 false
//
// 본문이 비어 있으면 파싱을 건너뛰고 기본값으로 검증한다.
func parseBody(c *fiber.Ctx, out any) (bool, error) {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(out); err != nil {
			return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
				"code":  "validation",
			})
		}
	}
	if err := validate.Struct(out); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"code":   "validation",
			"fields": fieldErrors(err),
		})
	}
	return true, nil
}
