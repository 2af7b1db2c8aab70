package llm

// CollectStream drains a stream channel into a GenerateResponse.
// It blocks until the channel is closed and returns the first error event.
func CollectStream(ch <-chan StreamEvent) (GenerateResponse, error) {
	var (
		resp GenerateResponse
		text []byte
		err  error
	)
	for ev := range ch {
		switch ev.Type {
		case StreamEventDelta:
			text = append(text, ev.Text...)
		case StreamEventComplete:
			if ev.Response != nil {
				resp = *ev.Response
			}
		case StreamEventError:
			if err == nil {
				err = ev.Err
			}
		}
	}
	if err != nil {
		return GenerateResponse{}, err
	}
	// If no complete event carried content, build it from accumulated text.
	if len(resp.Content) == 0 && len(text) > 0 {
		resp.Content = []ContentBlock{{Type: ContentTypeText, Text: string(text)}}
	}
	if resp.StopReason == "" {
		resp.StopReason = StopReasonEndTurn
	}
	return resp, nil
}
