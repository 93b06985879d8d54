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


package crawler

import "errors"

var (
	// ErrNoSnapshot indicates no offline snapshot exists for the URL.
	ErrNoSnapshot = errors.New("no cached snapshot")

	// ErrNoURLs indicates discovery produced nothing to crawl.
	ErrNoURLs = errors.New("no URLs discovered")

	// ErrBaseURLRequired is returned when discovery options lack a base URL.
	ErrBaseURLRequired = errors.New("base URL is required")
)
