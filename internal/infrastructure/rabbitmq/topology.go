package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeclareQueue declares dlq and a durable work queue whose rejected messages
// are routed to dlq through the default exchange. Declaring is idempotent as
// long as the arguments do not change.
func DeclareQueue(ch *amqp.Channel, queue, dlq string) error {
	if _, err := ch.QueueDeclare(
		dlq,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		args,
	)
	return err
}
