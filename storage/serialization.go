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


package storage

import (
	"github.com/poiesic/termreg/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	return id, err
}

// MarshalTerm serializes a Term to bytes.
func MarshalTerm(term *core.Term) []byte {
	buf := make([]byte, core.TermMUS.Size(*term))
	core.TermMUS.Marshal(*term, buf)
	return buf
}

// UnmarshalTerm deserializes a Term from bytes.
func UnmarshalTerm(data []byte) (*core.Term, error) {
	term, _, err := core.TermMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &term, nil
}

// MarshalEntity serializes a DirectoryEntity to bytes.
func MarshalEntity(entity *core.DirectoryEntity) []byte {
	buf := make([]byte, core.DirectoryEntityMUS.Size(*entity))
	core.DirectoryEntityMUS.Marshal(*entity, buf)
	return buf
}

// UnmarshalEntity deserializes a DirectoryEntity from bytes.
func UnmarshalEntity(data []byte) (*core.DirectoryEntity, error) {
	entity, _, err := core.DirectoryEntityMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}
