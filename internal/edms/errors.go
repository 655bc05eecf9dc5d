package edms

import "errors"

// Ошибки клиента EDMS.
var (
	// ErrAuth — вход в EDMS отклонён или не выполнен.
	ErrAuth = errors.New("ошибка аутентификации в EDMS")
	// ErrTransport — сбой HTTP-вызова EDMS.
	ErrTransport = errors.New("ошибка транспорта EDMS")
	// ErrFault — EDMS вернул SOAP Fault.
	ErrFault = errors.New("EDMS вернул SOAP Fault")
	// ErrUnexpectedResponse — ответ EDMS не соответствует ожидаемой структуре.
	ErrUnexpectedResponse = errors.New("неожиданный ответ EDMS")
)
