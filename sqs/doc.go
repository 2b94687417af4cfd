// Package sqs consumes messages from an SQS queue.
//
// Copyright (C) 2025 Michel Blomgren <https://pkt.systems>
//
// The configured queue may be a name, resolved through GetQueueUrl on
// first use, or a full queue URL. Poll long-polls the queue as a lazy
// sequence of batches; the consumer deletes what it has handled and can
// push back the visibility window of what it has not:
//
//	for batch, err := range cli.Poll(ctx, sqs.PollConfig{MaxMessages: 10}) {
//	    if err != nil {
//	        return err
//	    }
//	    for _, msg := range batch {
//	        if err := handle(msg); err != nil {
//	            cli.ChangeVisibility(ctx, msg, time.Minute)
//	            continue
//	        }
//	        cli.DeleteMessage(ctx, msg)
//	    }
//	}
//
// A message neither deleted nor extended is redelivered after its
// visibility timeout; that is the queue's retry mechanism.
package sqs
