package events

import (
	"bytes"
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("producer", Ordered, func() {
	Context("write", func() {
		It("writes succsessfully", func() {
			w := newTestWriter()
			kp := NewEventProducer(w)

			// add the first message
			msg := []byte("msg1")
			err := kp.Write(context.TODO(), JobNewMessageKind, bytes.NewReader(msg))
			Expect(err).To(BeNil())
			Eventually(w.Count, "2s", "50ms").Should(Equal(1))
			Expect(w.Last().Context.GetType()).To(Equal(JobNewMessageKind))
			Expect(w.Last().Context.GetSource()).To(Equal(eventSource))

			msg = []byte("msg2")
			err = kp.Write(context.TODO(), JobStatusMessageKind, bytes.NewReader(msg))
			Expect(err).To(BeNil())

			Eventually(w.Count, "2s", "50ms").Should(Equal(2))
			Expect(w.Last().Context.GetType()).To(Equal(JobStatusMessageKind))

			kp.Close()
		})

		It("never blocks the caller on a slow writer", func() {
			w := newTestWriter()
			w.delay = 200 * time.Millisecond
			kp := NewEventProducer(w)

			start := time.Now()
			for i := 0; i < 5; i++ {
				err := kp.Write(context.TODO(), JobNewMessageKind, bytes.NewReader([]byte("msg")))
				Expect(err).To(BeNil())
			}
			Expect(time.Since(start)).To(BeNumerically("<", 100*time.Millisecond))

			Eventually(w.Count, "5s", "50ms").Should(Equal(5))
			kp.Close()
		})
	})
})

type testwriter struct {
	mu       sync.Mutex
	messages []cloudevents.Event
	delay    time.Duration
}

func newTestWriter() *testwriter {
	return &testwriter{messages: []cloudevents.Event{}}
}

func (t *testwriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, e)
	return nil
}

func (t *testwriter) Close(_ context.Context) error {
	return nil
}

func (t *testwriter) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func (t *testwriter) Last() cloudevents.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.messages[len(t.messages)-1]
}
