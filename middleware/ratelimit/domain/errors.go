package domain

import "errors"

var (
	// ErrInvalidArgument indica parâmetro fora do contrato (capacidade <= 0,
	// janela não representável, timeout negativo, etc.).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDisposed é retornado por qualquer operação em um gate já encerrado.
	ErrDisposed = errors.New("rate gate disposed")
)
