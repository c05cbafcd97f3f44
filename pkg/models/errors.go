package models

import (
	"errors"
	"fmt"
)

// エラー分類。個別レコードの不正はロード時に回復（スキップ）し、
// パラメータ検証とセグメント解決の失敗は計算前に即座に返す。
// セグメント単位のモデル失敗は集計境界で回復し、全滅時のみリクエスト全体を失敗させる。
var (
	// ErrEmptyDataset 使用可能なレコードが1件もない
	ErrEmptyDataset = errors.New("behavior dataset contains no usable records")

	// ErrUnknownPersona フィルタがデータセットに存在しないペルソナを参照している
	ErrUnknownPersona = errors.New("persona was never observed in the dataset")

	// ErrNoMatchingSegments フィルタの積集合が空
	ErrNoMatchingSegments = errors.New("no segments match the specified filters")

	// ErrSimulationFailed 全セグメントが失敗した
	ErrSimulationFailed = errors.New("all segments failed to simulate")
)

// DataFormatError 不正な入力レコード。ロード時に警告ログ付きでスキップされる。
type DataFormatError struct {
	Line   int
	Reason string
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("malformed behavior record at line %d: %s", e.Line, e.Reason)
}

// InvalidParameterError 介入パラメータが有効範囲外。モデル実行前に拒否される。
type InvalidParameterError struct {
	Name   string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Name, e.Reason)
}

// IsInvalidParameter reports whether err is an InvalidParameterError.
func IsInvalidParameter(err error) bool {
	var ipe *InvalidParameterError
	return errors.As(err, &ipe)
}
