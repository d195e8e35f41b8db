package mq

import "errors"

var (
	// ErrDial — не удалось установить соединение с брокером.
	ErrDial = errors.New("dial amqp")

	// ErrNoChannel — канал ещё не открыт или соединение потеряно.
	ErrNoChannel = errors.New("no channel available")

	// ErrDeliveriesClosed — брокер закрыл канал доставки.
	ErrDeliveriesClosed = errors.New("deliveries channel closed")
)
