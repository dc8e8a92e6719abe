// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai provides abstractions for the AI services used by imagerank.
//
// The package defines four interfaces:
//   - Embedder: generates vector embeddings from text
//   - Completer: answers a text prompt, used to judge relevance
//   - Describer: captions an image file
//   - AIProvider: aggregates the services above for one invocation
//
// # Implementation Packages
//
//   - ai/openai: production implementation using OpenAI-compatible APIs
//   - ai/mock: test doubles for unit testing without external services
//
// Public production constructors (openai.NewProvider, openai.NewEmbedder, ...)
// return interface types. Mock constructors return concrete types so tests
// can inject behavior and assert call counts.
//
// # Usage Example
//
//	provider, err := openai.NewProvider(ai.NewConfig(ai.WithToken(token)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	caption, err := provider.Describer().DescribeImage(ctx, "images/image_1.jpg")
package ai
