package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// 一意制約違反など
	ErrConflict = errors.New("conflict")
	// シリアライズ失敗・デッドロック・ロック待ち。リトライ可能。
	ErrBusy = errors.New("store busy")
)
