package models

import (
	"errors"
	"fmt"
)

// 错误码常量
// 检索核心的所有失败模式共用一个错误类型，按错误码区分
const (
	ErrCodeParser              = 2001 // 上游解析错误（本核心只透传）
	ErrCodeStorage             = 2002 // 存储I/O失败
	ErrCodeRegulationNotFound  = 2003 // 法规集合不存在
	ErrCodePageNotFound        = 2004 // 页面不存在
	ErrCodeInvalidPageRange    = 2005 // 非法页码范围
	ErrCodeChapterNotFound     = 2006 // 章节不存在
	ErrCodeAnnotationNotFound  = 2007 // 注释不存在
	ErrCodeTableNotFound       = 2008 // 表格不存在
	ErrCodeReferenceResolution = 2009 // 引用解析失败
	ErrCodeIndex               = 2010 // 索引后端读写失败
)

// RetrievalError 检索核心统一错误类型
// 携带调用方渲染精确错误信息所需的结构化字段
type RetrievalError struct {
	Code    int    // 错误码
	Message string // 错误消息
	RegID   string // 涉及的集合ID
	PageNum int    // 涉及的页码
	Start   int    // 范围起始页（仅范围错误）
	End     int    // 范围结束页（仅范围错误）
	RefText string // 引用原文（仅引用解析错误）
	Cause   error  // 底层错误
}

// Error 实现error接口
func (e *RetrievalError) Error() string {
	msg := fmt.Sprintf("retrieval error (code=%d): %s", e.Code, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap 返回底层错误，支持errors.Is/As链式判断
func (e *RetrievalError) Unwrap() error {
	return e.Cause
}

// NewStorageError 创建存储错误
func NewStorageError(regID string, cause error) *RetrievalError {
	return &RetrievalError{
		Code:    ErrCodeStorage,
		Message: "storage operation failed",
		RegID:   regID,
		Cause:   cause,
	}
}

// NewRegulationNotFoundError 创建集合不存在错误
func NewRegulationNotFoundError(regID string) *RetrievalError {
	return &RetrievalError{
		Code:    ErrCodeRegulationNotFound,
		Message: fmt.Sprintf("regulation %s not found", regID),
		RegID:   regID,
	}
}

// NewPageNotFoundError 创建页面不存在错误
func NewPageNotFoundError(regID string, pageNum int) *RetrievalError {
	return &RetrievalError{
		Code:    ErrCodePageNotFound,
		Message: fmt.Sprintf("page %d of regulation %s not found", pageNum, regID),
		RegID:   regID,
		PageNum: pageNum,
	}
}

// NewInvalidPageRangeError 创建非法范围错误
func NewInvalidPageRangeError(regID string, start, end int, reason string) *RetrievalError {
	return &RetrievalError{
		Code:    ErrCodeInvalidPageRange,
		Message: fmt.Sprintf("invalid page range [%d, %d]: %s", start, end, reason),
		RegID:   regID,
		Start:   start,
		End:     end,
	}
}

// NewChapterNotFoundError 创建章节不存在错误
func NewChapterNotFoundError(regID, section string) *RetrievalError {
	return &RetrievalError{
		Code:    ErrCodeChapterNotFound,
		Message: fmt.Sprintf("chapter %q not found in regulation %s", section, regID),
		RegID:   regID,
		RefText: section,
	}
}

// NewAnnotationNotFoundError 创建注释不存在错误
func NewAnnotationNotFoundError(regID, annotationID string) *RetrievalError {
	return &RetrievalError{
		Code:    ErrCodeAnnotationNotFound,
		Message: fmt.Sprintf("annotation %q not found in regulation %s", annotationID, regID),
		RegID:   regID,
		RefText: annotationID,
	}
}

// NewTableNotFoundError 创建表格不存在错误
func NewTableNotFoundError(regID, tableID string) *RetrievalError {
	return &RetrievalError{
		Code:    ErrCodeTableNotFound,
		Message: fmt.Sprintf("table %q not found in regulation %s", tableID, regID),
		RegID:   regID,
		RefText: tableID,
	}
}

// NewReferenceResolutionError 创建引用解析错误
// refText保留原始引用文本，reason说明失败原因
func NewReferenceResolutionError(regID, refText, reason string, cause error) *RetrievalError {
	return &RetrievalError{
		Code:    ErrCodeReferenceResolution,
		Message: fmt.Sprintf("cannot resolve reference %q: %s", refText, reason),
		RegID:   regID,
		RefText: refText,
		Cause:   cause,
	}
}

// NewIndexError 创建索引后端错误
func NewIndexError(regID string, cause error) *RetrievalError {
	return &RetrievalError{
		Code:    ErrCodeIndex,
		Message: "index backend operation failed",
		RegID:   regID,
		Cause:   cause,
	}
}

// IsCode 判断错误链上是否存在指定错误码的RetrievalError
func IsCode(err error, code int) bool {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsNotFound 判断是否为任一"目标不存在"类错误
func IsNotFound(err error) bool {
	var re *RetrievalError
	if !errors.As(err, &re) {
		return false
	}
	switch re.Code {
	case ErrCodeRegulationNotFound, ErrCodePageNotFound,
		ErrCodeChapterNotFound, ErrCodeAnnotationNotFound, ErrCodeTableNotFound:
		return true
	}
	return false
}
