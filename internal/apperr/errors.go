// Package apperr 가상 강의실 세션 계층의 오류 분류
//
// 요청 단위 실패는 세 가지 타입 중 하나로 표현된다. 그 외의 오류(DB 장애 등)는
// fmt.Errorf("%w")로 감싸서 올려보내며 세 타입 어느 것에도 해당하지 않는다.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError 입력값 검증 실패 (빈 채팅, 빈 소회의실 이름, 잘못된 상태 전이)
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// AuthorizationError 역할/비밀번호 검사 실패
type AuthorizationError struct {
	Action string
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not allowed to %s: %s", e.Action, e.Reason)
}

// NotFoundError 미팅/참가자 등 레코드 없음
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Validation ValidationError 생성
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Forbidden AuthorizationError 생성
func Forbidden(action, reason string) error {
	return &AuthorizationError{Action: action, Reason: reason}
}

// NotFound NotFoundError 생성
func NotFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

// IsValidation err 체인에 ValidationError가 있는지 확인
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsAuthorization err 체인에 AuthorizationError가 있는지 확인
func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

// IsNotFound err 체인에 NotFoundError가 있는지 확인
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsNotFoundOf 특정 리소스의 NotFoundError인지 확인
func IsNotFoundOf(err error, resource string) bool {
	var target *NotFoundError
	return errors.As(err, &target) && target.Resource == resource
}

// Code 오류 분류 코드 (HTTP/WebSocket 응답용)
func Code(err error) string {
	switch {
	case IsValidation(err):
		return "validation"
	case IsAuthorization(err):
		return "forbidden"
	case IsNotFound(err):
		return "not_found"
	default:
		return "internal"
	}
}
